package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mobilsoft/backoffice/internal/recordstore"
)

// Fixture is an ordered list of records. Later records may point at earlier
// ones: a string value "@key" is replaced with the id created for key.
type Fixture struct {
	Records []FixtureRecord `yaml:"records"`
}

// FixtureRecord is one record to create.
type FixtureRecord struct {
	Key    string         `yaml:"key"`
	Model  string         `yaml:"model"`
	Values map[string]any `yaml:"values"`
}

// DecodeFixture parses a YAML fixture, rejecting unknown keys.
func DecodeFixture(r io.Reader) (Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return Fixture{}, fmt.Errorf("decode fixture: %w", err)
	}
	for i, rec := range f.Records {
		if rec.Model == "" {
			return Fixture{}, fmt.Errorf("record %d: model is required", i)
		}
	}
	return f, nil
}

// Apply creates the records in order and returns the ids by key. The tokens
// "$today" and "$now" expand to the current date and time.
func Apply(ctx context.Context, store recordstore.Store, f Fixture, now time.Time) (map[string]int64, error) {
	ids := make(map[string]int64)
	r := resolver{ids: ids, now: now}
	for i, rec := range f.Records {
		values, err := r.values(rec.Values)
		if err != nil {
			return ids, fmt.Errorf("record %d (%s): %w", i, rec.Model, err)
		}
		id, err := store.Create(ctx, rec.Model, values)
		if err != nil {
			return ids, fmt.Errorf("record %d (%s): %w", i, rec.Model, err)
		}
		if rec.Key != "" {
			if _, dup := ids[rec.Key]; dup {
				return ids, fmt.Errorf("record %d: duplicate key %q", i, rec.Key)
			}
			ids[rec.Key] = id
		}
	}
	return ids, nil
}

type resolver struct {
	ids map[string]int64
	now time.Time
}

func (r resolver) values(in map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(in))
	for k, v := range in {
		rv, err := r.value(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = rv
	}
	return out, nil
}

func (r resolver) value(v any) (any, error) {
	switch x := v.(type) {
	case string:
		switch {
		case x == "$today":
			return r.now.Format("2006-01-02"), nil
		case x == "$now":
			return r.now.UTC().Format("2006-01-02 15:04:05"), nil
		case strings.HasPrefix(x, "@"):
			id, ok := r.ids[x[1:]]
			if !ok {
				return nil, fmt.Errorf("unknown reference %q", x)
			}
			return id, nil
		}
		return x, nil
	case int:
		return int64(x), nil
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			rv, err := r.value(item)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	case map[string]any:
		return r.values(x)
	}
	return v, nil
}
