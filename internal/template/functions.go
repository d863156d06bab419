package template

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	mrand "math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxPayloadSize = 16 * 1024 * 1024

var funcRegistry = map[string]func(args string) (string, error){
	"uuid":          fnUUID,
	"timestamp":     fnTimestamp,
	"timestamp_ms":  fnTimestampMs,
	"now":           fnNow,
	"random":        fnRandom,
	"random_float":  fnRandomFloat,
	"random_string": fnRandomString,
	"payload":       fnPayload,
	"date":          fnDate,
}

// evalFunction evaluates a built-in function call such as random(1,10).
// The bool result is false when expr is not a known function call.
func evalFunction(expr string) (string, bool, error) {
	parenIdx := strings.Index(expr, "(")
	if parenIdx == -1 || !strings.HasSuffix(expr, ")") {
		return "", false, nil
	}

	funcName := expr[:parenIdx]
	args := expr[parenIdx+1 : len(expr)-1]

	fn, ok := funcRegistry[funcName]
	if !ok {
		return "", false, nil
	}

	result, err := fn(args)
	if err != nil {
		return "", true, fmt.Errorf("function %s: %w", funcName, err)
	}
	return result, true, nil
}

func noArgs(name, args string) error {
	if args != "" {
		return fmt.Errorf("%s() takes no arguments", name)
	}
	return nil
}

func fnUUID(args string) (string, error) {
	if err := noArgs("uuid", args); err != nil {
		return "", err
	}
	return uuid.NewString(), nil
}

// fnTimestamp returns the current Unix timestamp in seconds.
func fnTimestamp(args string) (string, error) {
	if err := noArgs("timestamp", args); err != nil {
		return "", err
	}
	return strconv.FormatInt(time.Now().Unix(), 10), nil
}

// fnTimestampMs returns the current Unix timestamp in milliseconds.
func fnTimestampMs(args string) (string, error) {
	if err := noArgs("timestamp_ms", args); err != nil {
		return "", err
	}
	return strconv.FormatInt(time.Now().UnixMilli(), 10), nil
}

// fnNow returns the current Unix time in seconds with millisecond precision.
func fnNow(args string) (string, error) {
	if err := noArgs("now", args); err != nil {
		return "", err
	}
	return strconv.FormatFloat(float64(time.Now().UnixMilli())/1000, 'f', 3, 64), nil
}

// fnRandom generates a random integer between min and max (inclusive).
// Usage: random(min,max)
func fnRandom(args string) (string, error) {
	parts := strings.Split(args, ",")
	if len(parts) != 2 {
		return "", fmt.Errorf("random(min,max) requires exactly 2 arguments")
	}

	min, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid min value: %w", err)
	}

	max, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid max value: %w", err)
	}

	if min > max {
		return "", fmt.Errorf("min (%d) must be <= max (%d)", min, max)
	}

	n, err := rand.Int(rand.Reader, big.NewInt(max-min+1))
	if err != nil {
		return "", err
	}

	return strconv.FormatInt(min+n.Int64(), 10), nil
}

// fnRandomFloat returns a pseudo-random float in [0,1), or in [min,max)
// with two arguments, rounded to two decimals. Usage: random_float(18,26)
func fnRandomFloat(args string) (string, error) {
	if strings.TrimSpace(args) == "" {
		return strconv.FormatFloat(mrand.Float64(), 'f', -1, 64), nil
	}
	parts := strings.Split(args, ",")
	if len(parts) != 2 {
		return "", fmt.Errorf("random_float takes no arguments or (min,max)")
	}
	lo, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return "", fmt.Errorf("invalid min value: %w", err)
	}
	hi, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return "", fmt.Errorf("invalid max value: %w", err)
	}
	if lo > hi {
		return "", fmt.Errorf("min (%g) must be <= max (%g)", lo, hi)
	}
	return strconv.FormatFloat(lo+mrand.Float64()*(hi-lo), 'f', 2, 64), nil
}

// fnRandomString generates a random alphanumeric string of the specified length.
// Usage: random_string(length)
func fnRandomString(args string) (string, error) {
	length, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil {
		return "", fmt.Errorf("invalid length: %w", err)
	}
	if length <= 0 {
		return "", fmt.Errorf("length must be positive")
	}
	if length > 1000 {
		return "", fmt.Errorf("length must be <= 1000")
	}

	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}

	return string(result), nil
}

// fnPayload returns a printable random payload of exactly size bytes.
// Usage: payload(size)
func fnPayload(args string) (string, error) {
	size, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil {
		return "", fmt.Errorf("invalid size: %w", err)
	}
	if size <= 0 {
		return "", fmt.Errorf("size must be positive")
	}
	if size > maxPayloadSize {
		return "", fmt.Errorf("size must be <= %d", maxPayloadSize)
	}

	raw := make([]byte, base64.StdEncoding.DecodedLen(size)+3)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw)[:size], nil
}

// fnDate formats the current time using Go's time format.
// Usage: date(format), e.g. date(2006-01-02). Defaults to RFC 3339.
func fnDate(args string) (string, error) {
	format := strings.TrimSpace(args)
	if format == "" {
		format = time.RFC3339
	}
	return time.Now().Format(format), nil
}
