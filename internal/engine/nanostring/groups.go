package nanostring

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadGroups reads a sample-to-group CSV. The first row is a header; the
// first column names the sample, the second its group.
func ReadGroups(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseGroups(f)
}

func parseGroups(r io.Reader) (map[string]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	out := map[string]string{}
	header := true
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if header {
			header = false
			continue
		}
		if len(record) < 2 {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("groups file line %d: expected sample,group", line)
		}
		sample := strings.TrimSpace(strings.TrimPrefix(record[0], "\ufeff"))
		group := strings.TrimSpace(record[1])
		if sample == "" || group == "" {
			continue
		}
		out[sample] = group
	}
	if len(out) == 0 {
		return nil, errors.New("groups file has no sample rows")
	}
	return out, nil
}
