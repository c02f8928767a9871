package books

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"LIBRA-backend/internal/platform/db"
)

// CatalogFile は `books import` が読む YAML
//
//	books:
//	  - title: The Go Programming Language
//	    author: Alan Donovan
//	    cover: SOFT
//	    inventory: 3
//	    daily_fee: "1.50"
type CatalogFile struct {
	Books []CatalogEntry `yaml:"books"`
}

type CatalogEntry struct {
	Title     string `yaml:"title"`
	Author    string `yaml:"author"`
	Cover     string `yaml:"cover"`
	Inventory int    `yaml:"inventory"`
	DailyFee  string `yaml:"daily_fee"`
}

type ImportResult struct {
	Total   int               `json:"total"`
	Created int               `json:"created"`
	Updated int               `json:"updated"`
	NgCount int               `json:"ng_count"`
	Results []ImportRowResult `json:"results"`
}

type ImportRowResult struct {
	Row    int     `json:"row"` // 1-based
	Ok     bool    `json:"ok"`
	Error  *string `json:"error,omitempty"`
	BookID *int64  `json:"book_id,omitempty"`
	Title  string  `json:"title"`
}

func ParseCatalog(r io.Reader) (*CatalogFile, error) {
	var f CatalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return &f, nil
}

// Import は title+author が一致する本があれば cover/inventory/daily_fee を上書き、無ければ追加する。
// 不正な行はスキップして結果に残し、正しい行は1つの Tx でまとめて書く。
func (s *Service) Import(ctx context.Context, f *CatalogFile) (ImportResult, error) {
	res := ImportResult{Total: len(f.Books)}

	type row struct {
		idx  int
		book *Book
	}
	var valid []row

	for i, e := range f.Books {
		r := ImportRowResult{Row: i + 1, Title: e.Title}
		fee, err := decimal.NewFromString(e.DailyFee)
		if err != nil {
			msg := "daily_fee must be a decimal"
			r.Error = &msg
			res.Results = append(res.Results, r)
			res.NgCount++
			continue
		}
		inv := e.Inventory
		b, err := fromCreate(CreateBookRequest{
			Title: e.Title, Author: e.Author, Cover: Cover(e.Cover), Inventory: &inv, DailyFee: &fee,
		})
		if err != nil {
			msg := err.Error()
			r.Error = &msg
			res.Results = append(res.Results, r)
			res.NgCount++
			continue
		}
		res.Results = append(res.Results, r)
		valid = append(valid, row{idx: len(res.Results) - 1, book: b})
	}

	err := db.RunInTx(ctx, s.conn, nil, func(ctx context.Context, tx db.Tx) error {
		for _, v := range valid {
			existing, err := s.store.FindByTitleAuthor(ctx, tx, v.book.Title, v.book.Author)
			if err != nil {
				return err
			}
			if existing != nil {
				v.book.ID = existing.ID
				if err := s.store.Update(ctx, tx, v.book); err != nil {
					return err
				}
				res.Updated++
			} else {
				if err := s.store.Insert(ctx, tx, v.book); err != nil {
					return err
				}
				res.Created++
			}
			id := v.book.ID
			res.Results[v.idx].Ok = true
			res.Results[v.idx].BookID = &id
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, err
	}

	log.Printf("[INFO] catalog import: total=%d created=%d updated=%d ng=%d",
		res.Total, res.Created, res.Updated, res.NgCount)
	return res, nil
}
