package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/andreasstove999/ecommerce-system/services/inventory-tracker-go/internal/inventory"
)

const maxBodyBytes = 1 << 20

var (
	errNotJSON       = errors.New("request content type must be JSON")
	errMalformedBody = errors.New("request body must be a JSON object")
)

type fieldError struct {
	field  string
	reason string
}

func (e *fieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.field, e.reason)
}

// decodeObject reads a single JSON object from the request body. It returns
// errNotJSON for a non-JSON content type and errMalformedBody when the body
// is not exactly one JSON object.
func decodeObject(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	if !isJSONContentType(r.Header.Get("Content-Type")) {
		return nil, errNotJSON
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()

	var body any
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data", errMalformedBody)
	}

	obj, ok := body.(map[string]any)
	if !ok {
		return nil, errMalformedBody
	}
	return obj, nil
}

// isJSONContentType accepts application/json and any application/*+json type.
func isJSONContentType(v string) bool {
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		return false
	}
	return mt == "application/json" ||
		(strings.HasPrefix(mt, "application/") && strings.HasSuffix(mt, "+json"))
}

func parseNewProduct(obj map[string]any) (inventory.NewProduct, error) {
	handle, err := stringField(obj, "handle")
	if err != nil {
		return inventory.NewProduct{}, err
	}
	weight, err := floatField(obj, "weight")
	if err != nil {
		return inventory.NewProduct{}, err
	}
	price, err := floatField(obj, "price")
	if err != nil {
		return inventory.NewProduct{}, err
	}
	return inventory.NewProduct{Handle: handle, Weight: weight, Price: price}, nil
}

func parseStockEntry(obj map[string]any) (inventory.StockEntry, error) {
	location, err := stringField(obj, "location")
	if err != nil {
		return inventory.StockEntry{}, err
	}
	qty, err := intField(obj, "qty")
	if err != nil {
		return inventory.StockEntry{}, err
	}
	return inventory.StockEntry{Location: location, Qty: qty}, nil
}

func lookup(obj map[string]any, key string) (any, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return nil, &fieldError{field: key, reason: "required"}
	}
	return v, nil
}

// stringField accepts strings, numbers (verbatim literal) and booleans.
func stringField(obj map[string]any, key string) (string, error) {
	v, err := lookup(obj, key)
	if err != nil {
		return "", err
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		return strconv.FormatBool(t), nil
	}
	return "", &fieldError{field: key, reason: "must be a string"}
}

// floatField accepts finite numbers, numeric strings and booleans.
func floatField(obj map[string]any, key string) (float64, error) {
	v, err := lookup(obj, key)
	if err != nil {
		return 0, err
	}

	var f float64
	switch t := v.(type) {
	case json.Number:
		f, err = t.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(t), 64)
	case bool:
		f = boolValue(t)
	default:
		err = errors.New("not a number")
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &fieldError{field: key, reason: "must be a finite number"}
	}
	return f, nil
}

// intField accepts integers, numbers with a fractional part (truncated toward
// zero), base-10 integer strings and booleans.
func intField(obj map[string]any, key string) (int64, error) {
	v, err := lookup(obj, key)
	if err != nil {
		return 0, err
	}

	invalid := &fieldError{field: key, reason: "must be an integer"}
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, invalid
		}
		f = math.Trunc(f)
		if f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, invalid
		}
		return int64(f), nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, invalid
		}
		return i, nil
	case bool:
		return int64(boolValue(t)), nil
	}
	return 0, invalid
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
