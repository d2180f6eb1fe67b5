package loader

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/brunobiangulo/bibnet/record"
)

const maxLineBytes = 4 << 20

// JSONLLoader reads one JSON object per line:
//
//	{"id": "...", "year": 2001, "authors": [...], "subjects": ["45.10.Db"]}
//
// Authors may be strings, parsed like tabular cells, or objects with
// given, middle, surname and suffix fields.
type JSONLLoader struct {
	opts Options
}

type jsonPaper struct {
	ID       string            `json:"id"`
	Year     *int              `json:"year"`
	Authors  []json.RawMessage `json:"authors"`
	Subjects []string          `json:"subjects"`
}

func (l *JSONLLoader) SupportedFormats() []string { return []string{"jsonl", "ndjson"} }

func (l *JSONLLoader) Load(ctx context.Context, path string) (*Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)

	b := &Batch{}
	for line := 1; sc.Scan(); line++ {
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		p, err := l.parse(raw)
		if err != nil {
			b.Skipped++
			slog.Debug("loader: bad line", "line", line, "error", err)
			continue
		}
		b.Records = append(b.Records, p)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return b, nil
}

func (l *JSONLLoader) parse(raw []byte) (record.Paper, error) {
	var jp jsonPaper
	if err := json.Unmarshal(raw, &jp); err != nil {
		return record.Paper{}, fmt.Errorf("%w: %v", record.ErrMalformed, err)
	}
	p := record.Paper{ID: jp.ID, Year: record.UnknownYear}
	if jp.Year != nil {
		p.Year = *jp.Year
	}
	for _, a := range jp.Authors {
		var name string
		if err := json.Unmarshal(a, &name); err == nil {
			if id := authorID(name, l.opts); id != "" {
				p.Authors = append(p.Authors, id)
			}
			continue
		}
		var author record.Author
		if err := json.Unmarshal(a, &author); err != nil {
			return record.Paper{}, fmt.Errorf("%w: author %s: %v", record.ErrMalformed, a, err)
		}
		p.Authors = append(p.Authors, author.Key(l.opts.InitialsOnly))
	}
	for _, s := range jp.Subjects {
		p.Subjects = append(p.Subjects, record.EntityID(s))
	}
	return p, nil
}
