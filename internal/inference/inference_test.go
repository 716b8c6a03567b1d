package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/seenimoa/newsbrief/pkg/models"
)

func TestClientInfer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if body["text"] == "" {
			t.Error("text field missing from request")
		}
		fmt.Fprint(w, `{"summary":"Acme grew.","sentiment":"POSITIVE","topics":["acme","growth"]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	res, err := c.Infer(context.Background(), "Acme reported growth this quarter.")
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if res.Summary != "Acme grew." {
		t.Errorf("summary: got %q", res.Summary)
	}
	if res.Sentiment != models.SentimentPositive {
		t.Errorf("sentiment: got %q", res.Sentiment)
	}
	if !reflect.DeepEqual(res.Topics, []string{"acme", "growth"}) {
		t.Errorf("topics: got %v", res.Topics)
	}
}

func TestClientInferUnknownLabelDefaultsNeutral(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"summary":"s","sentiment":"LABEL_1","topics":[]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	res, err := c.Infer(context.Background(), "text")
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if res.Sentiment != models.SentimentNeutral {
		t.Errorf("unknown label must map to NEUTRAL, got %q", res.Sentiment)
	}
}

func TestClientInferServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	if _, err := c.Infer(context.Background(), "text"); err == nil {
		t.Fatal("expected error on 503")
	}
}

func TestLexiconScore(t *testing.T) {
	tests := []struct {
		name string
		text string
		want models.Sentiment
	}{
		{"positive", "Shares surge after record profit and strong growth", models.SentimentPositive},
		{"negative", "Stock plunges as fraud probe triggers layoffs", models.SentimentNegative},
		{"no signal", "The company held its annual meeting on Tuesday", models.SentimentNeutral},
		{"balanced", "Quarterly profit reported alongside a one-time loss", models.SentimentNeutral},
		{"word boundary", "The executive discussed the execution plan", models.SentimentNeutral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(tt.text); got != tt.want {
				t.Errorf("Score(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestLexiconInferEmptyText(t *testing.T) {
	res, err := NewLexicon().Infer(context.Background(), "   ")
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if res.Sentiment != models.SentimentNeutral {
		t.Errorf("sentiment: got %q, want NEUTRAL", res.Sentiment)
	}
	if res.Summary == "" {
		t.Error("expected placeholder summary")
	}
}

func TestLexiconInferDeterministic(t *testing.T) {
	text := "Acme shares surge after Acme posts record cloud revenue. " +
		"The cloud unit drove growth across all Acme segments this quarter."

	first, err := NewLexicon().Infer(context.Background(), text)
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	second, _ := NewLexicon().Infer(context.Background(), text)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("non-deterministic output: %+v vs %+v", first, second)
	}
	if first.Sentiment != models.SentimentPositive {
		t.Errorf("sentiment: got %q", first.Sentiment)
	}
	if len(first.Topics) == 0 || first.Topics[0] != "acme" {
		t.Errorf("expected most frequent term first, got %v", first.Topics)
	}
	if len(first.Topics) > 5 {
		t.Errorf("topic set too large: %v", first.Topics)
	}
}

func TestLeadingSentences(t *testing.T) {
	short := "One sentence."
	if got := leadingSentences(short, 220); got != short {
		t.Errorf("short text must pass through, got %q", got)
	}

	long := "First sentence here. " + string(make([]rune, 300))
	got := leadingSentences(long, 40)
	if got != "First sentence here." {
		t.Errorf("expected cut at sentence boundary, got %q", got)
	}
}
