package oracle

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPSourceReport(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		field   string
		want    int64
		wantErr bool
	}{
		{"number", `{"price": 1450.5}`, "price", 145050, false},
		{"string", `{"price": "1210.00"}`, "price", 121000, false},
		{"integer", `{"price": 64123}`, "price", 6412300, false},
		{"extra precision truncates", `{"price": "99.999"}`, "price", 9999, false},
		{"missing field", `{"rate": 1}`, "price", 0, true},
		{"zero", `{"price": 0}`, "price", 0, true},
		{"negative", `{"price": -3}`, "price", 0, true},
		{"garbage", `{"price": "much"}`, "price", 0, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			got, err := NewHTTPSource(srv.URL, tc.field).Report(context.Background())
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Report = %d, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Report: %v", err)
			}
			if got != tc.want {
				t.Errorf("Report = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestHTTPSourceStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := NewHTTPSource(srv.URL, "price").Report(context.Background()); err == nil {
		t.Fatal("Report should fail on a non-200 status")
	}
}

func TestParseQuoteRejectsNonNumeric(t *testing.T) {
	for _, raw := range []string{`true`, `null`, `[1]`, `{}`} {
		if _, err := parseQuote(json.RawMessage(raw)); err == nil {
			t.Errorf("parseQuote(%s) should fail", raw)
		}
	}
}

func TestParseRoundData(t *testing.T) {
	// Build a response: roundId, answer, startedAt, updatedAt, answeredInRound.
	buf := make([]byte, 5*wordSize)
	answer := big.NewInt(6412345000000) // 64123.45 at 8 decimals
	answer.FillBytes(buf[wordSize : 2*wordSize])
	updated := big.NewInt(time.Now().Unix())
	updated.FillBytes(buf[3*wordSize : 4*wordSize])

	gotAnswer, gotUpdated, err := parseRoundData(buf)
	if err != nil {
		t.Fatalf("parseRoundData: %v", err)
	}
	if gotAnswer.Cmp(answer) != 0 {
		t.Errorf("answer = %s, want %s", gotAnswer, answer)
	}
	if gotUpdated.Unix() != updated.Int64() {
		t.Errorf("updatedAt = %d, want %d", gotUpdated.Unix(), updated.Int64())
	}

	if _, _, err := parseRoundData(buf[:3*wordSize]); err == nil {
		t.Error("parseRoundData should reject short responses")
	}
}

func TestParseRoundDataNegativeAnswer(t *testing.T) {
	buf := make([]byte, 5*wordSize)
	// int256 -1: all bits set in the answer word.
	for i := wordSize; i < 2*wordSize; i++ {
		buf[i] = 0xff
	}
	big.NewInt(time.Now().Unix()).FillBytes(buf[3*wordSize : 4*wordSize])

	answer, _, err := parseRoundData(buf)
	if err != nil {
		t.Fatalf("parseRoundData: %v", err)
	}
	if answer.Cmp(big.NewInt(-1)) != 0 {
		t.Errorf("answer = %s, want -1", answer)
	}
	if _, err := scaleAnswer(answer, big.NewInt(1)); err == nil {
		t.Error("scaleAnswer should reject negative answers")
	}
}

func TestScaleAnswer(t *testing.T) {
	cases := []struct {
		name     string
		answer   int64
		decimals int64
		want     int64
	}{
		{"eight decimals", 6412345000000, 8, 6412345},
		{"two decimals", 121000, 2, 121000},
		{"zero decimals", 1450, 0, 145000},
		{"truncates", 123456789, 8, 123},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(tc.decimals), nil)
			got, err := scaleAnswer(big.NewInt(tc.answer), scale)
			if err != nil {
				t.Fatalf("scaleAnswer: %v", err)
			}
			if got != tc.want {
				t.Errorf("scaleAnswer = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestStaticSource(t *testing.T) {
	s := NewStaticSource(121000)
	got, err := s.Report(context.Background())
	if err != nil || got != 121000 {
		t.Fatalf("Report = %d, %v, want 121000, nil", got, err)
	}

	s.Set(145000)
	if got, _ := s.Report(context.Background()); got != 145000 {
		t.Errorf("Report after Set = %d, want 145000", got)
	}
}
