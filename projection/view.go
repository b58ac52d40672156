package projection

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// stagedView buffers the changes of one Apply call on top of a read function.
type stagedView struct {
	read      func(key string) (Record, bool, error)
	updatedAt time.Time
	puts      map[string]Record
	deletes   map[string]struct{}
}

func newStagedView(read func(key string) (Record, bool, error), updatedAt time.Time) *stagedView {
	return &stagedView{
		read:      read,
		updatedAt: updatedAt.UTC(),
		puts:      make(map[string]Record),
		deletes:   make(map[string]struct{}),
	}
}

func (v *stagedView) Get(key string, target any) (bool, error) {
	if _, deleted := v.deletes[key]; deleted {
		return false, nil
	}

	record, ok := v.puts[key]
	if !ok {
		var err error
		if record, ok, err = v.read(key); err != nil || !ok {
			return false, err
		}
	}

	if err := codec.Unmarshal(record.Data, target); err != nil {
		return false, err
	}

	return true, nil
}

func (v *stagedView) Put(key string, value any) error {
	if key == "" {
		return ErrEmptyKey
	}

	data, err := codec.Marshal(value)
	if err != nil {
		return err
	}

	delete(v.deletes, key)
	v.puts[key] = Record{Key: key, Data: json.RawMessage(data), UpdatedAt: v.updatedAt}

	return nil
}

func (v *stagedView) Delete(key string) error {
	if key == "" {
		return ErrEmptyKey
	}

	delete(v.puts, key)
	v.deletes[key] = struct{}{}

	return nil
}

// listRecords filters, sorts and pages records.
func listRecords(records map[string]Record, options ListOptions) []Record {
	result := make([]Record, 0, len(records))
	for key, record := range records {
		if strings.HasPrefix(key, options.Prefix) {
			result = append(result, record)
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })

	if options.Offset > 0 {
		if options.Offset >= len(result) {
			return []Record{}
		}
		result = result[options.Offset:]
	}

	if options.Limit > 0 && options.Limit < len(result) {
		result = result[:options.Limit]
	}

	return result
}
