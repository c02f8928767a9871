package borrowings

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"LIBRA-backend/internal/platform/apperr"
)

const (
	EncodingUTF8 = "utf8"
	EncodingSJIS = "sjis"
)

var overdueHeader = []string{"borrowing_id", "user_email", "book_title", "expected_return_date", "days_overdue"}

// ContentType は CSV の Content-Type
func ContentType(enc string) string {
	if enc == EncodingSJIS {
		return "text/csv; charset=Shift_JIS"
	}
	return "text/csv; charset=utf-8"
}

func encoderFor(enc string) (*encoding.Encoder, error) {
	switch enc {
	case "", EncodingUTF8:
		// Excel で文字化けしないよう BOM を付ける
		return unicode.UTF8BOM.NewEncoder(), nil
	case EncodingSJIS:
		// Windowsの「ANSI（CP932）」相当。表せない文字は置換する
		return encoding.ReplaceUnsupported(japanese.ShiftJIS.NewEncoder()), nil
	default:
		return nil, apperr.InvalidField("encoding", "encoding must be utf8 or sjis")
	}
}

// ExportOverdue は延滞一覧を CSV で w に書く
func (s *Service) ExportOverdue(ctx context.Context, w io.Writer, enc string) error {
	e, err := encoderFor(enc)
	if err != nil {
		return err
	}
	items, err := overdueItems(ctx, s.store, dateOf(s.clock.Now()))
	if err != nil {
		return err
	}

	tw := transform.NewWriter(w, e)
	cw := csv.NewWriter(tw)
	if err := cw.Write(overdueHeader); err != nil {
		return err
	}
	for _, it := range items {
		record := []string{
			it.BorrowingID,
			it.UserEmail,
			it.BookTitle,
			it.ExpectedReturn.Format(DateLayout),
			strconv.Itoa(it.DaysOverdue),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return tw.Close()
}
