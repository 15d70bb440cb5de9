// Package dataset loads extractive question-answering records from a local
// datasets directory laid out as <dir>/<name>/<split>.jsonl or .json.
package dataset

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"github.com/samcharles93/tunebench/internal/dataset/split"
)

// ErrNotFound reports a dataset or split file that does not exist.
var ErrNotFound = errors.New("dataset not found")

// Record is one question with its context passage and reference answers.
type Record struct {
	ID       string
	Title    string
	Question string
	Context  string
	Answers  []string
}

// rawAnswers accepts both the flat {"text": [...], "answer_start": [...]}
// column layout and the nested [{"text", "answer_start"}] list.
type rawAnswers struct {
	Text []string
}

func (a *rawAnswers) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var list []struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(b, &list); err != nil {
			return err
		}
		a.Text = make([]string, len(list))
		for i, item := range list {
			a.Text[i] = item.Text
		}
		return nil
	}
	var cols struct {
		Text []string `json:"text"`
	}
	if err := json.Unmarshal(b, &cols); err != nil {
		return err
	}
	if cols.Text == nil {
		return errors.New("answers.text is missing")
	}
	a.Text = cols.Text
	return nil
}

// rawRecord keeps pointers so missing fields can be told apart from empty ones.
type rawRecord struct {
	ID       *string     `json:"id"`
	Title    *string     `json:"title"`
	Question *string     `json:"question"`
	Context  *string     `json:"context"`
	Answers  *rawAnswers `json:"answers"`
}

func (r rawRecord) record() (Record, error) {
	var missing []string
	if r.Question == nil {
		missing = append(missing, "question")
	}
	if r.Context == nil {
		missing = append(missing, "context")
	}
	if r.Answers == nil {
		missing = append(missing, "answers")
	}
	if len(missing) > 0 {
		return Record{}, fmt.Errorf("missing field(s) %s", strings.Join(missing, ", "))
	}
	rec := Record{Question: *r.Question, Context: *r.Context, Answers: r.Answers.Text}
	if r.ID != nil {
		rec.ID = *r.ID
	}
	if r.Title != nil {
		rec.Title = *r.Title
	}
	return rec, nil
}

// squadFile is the official SQuAD v1.1 nested layout.
type squadFile struct {
	Data []struct {
		Title      string `json:"title"`
		Paragraphs []struct {
			Context string `json:"context"`
			QAs     []struct {
				ID       string      `json:"id"`
				Question *string     `json:"question"`
				Answers  *rawAnswers `json:"answers"`
			} `json:"qas"`
		} `json:"paragraphs"`
	} `json:"data"`
}

// Path returns the file holding split of dataset name under dir, preferring
// .jsonl over .json.
func Path(dir, name, splitName string) (string, error) {
	base := filepath.Join(dir, name, splitName)
	for _, ext := range []string{".jsonl", ".json"} {
		if _, err := os.Stat(base + ext); err == nil {
			return base + ext, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %s (looked for %s.jsonl and %s.json)", ErrNotFound, name, base, base)
}

// Load reads the records selected by the slice expression expr, for example
// "train[:1%]", of dataset name under dir.
func Load(dir, name, expr string) ([]Record, error) {
	s, err := split.Parse(expr)
	if err != nil {
		return nil, err
	}
	path, err := Path(dir, name, s.Name)
	if err != nil {
		return nil, err
	}
	records, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	start, end := s.Range(len(records))
	return records[start:end], nil
}

// ReadFile parses a .jsonl or .json dataset file.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	if strings.EqualFold(filepath.Ext(path), ".jsonl") {
		return readJSONL(f)
	}
	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return parseJSON(raw)
}

func readJSONL(r io.Reader) ([]Record, error) {
	var out []Record
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var raw rawRecord
		if err := json.Unmarshal(b, &raw); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rec, err := raw.record()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func parseJSON(raw []byte) ([]Record, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		return parseSQuAD(raw)
	}
	var rows []rawRecord
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(rows))
	for i, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func parseSQuAD(raw []byte) ([]Record, error) {
	var f squadFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	if f.Data == nil {
		return nil, errors.New(`expected a "data" array`)
	}
	var out []Record
	for _, article := range f.Data {
		for _, p := range article.Paragraphs {
			for _, qa := range p.QAs {
				ctx := p.Context
				rec, err := rawRecord{
					ID:       &qa.ID,
					Title:    &article.Title,
					Question: qa.Question,
					Context:  &ctx,
					Answers:  qa.Answers,
				}.record()
				if err != nil {
					return nil, fmt.Errorf("question %q: %w", qa.ID, err)
				}
				out = append(out, rec)
			}
		}
	}
	return out, nil
}
