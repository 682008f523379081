package filter

import (
	"testing"

	"github.com/dhcgn/trapmail/model"
)

var benchRecord = model.NewRecord(
	model.Envelope{Sender: "app@example.com", Recipients: []string{"user@example.com", "audit@example.com"}},
	[]byte("From: app@example.com\nTo: user@example.com\nSubject: Test\n\nThis message contains important content that should match the filter.\n"),
	model.Invocation{},
	model.ProcessInfo{PID: 2, PPID: 1},
)

func BenchmarkFilter_Matches_NoFilters(b *testing.B) {
	f, err := New(Options{})
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Matches(benchRecord)
	}
}

func BenchmarkFilter_Matches_Envelope(b *testing.B) {
	f, err := New(Options{
		IncludeHeader: []string{`X-Envelope-To:.*audit@`},
	})
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Matches(benchRecord)
	}
}

// BenchmarkFilter_Matches_MultiplePatterns benchmarks with multiple regex patterns
func BenchmarkFilter_Matches_MultiplePatterns(b *testing.B) {
	f, err := New(Options{
		IncludeHeader: []string{
			"From:.*@example\\.com",
			"Subject:.*Test.*",
			"To:.*user.*",
		},
	})
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Matches(benchRecord)
	}
}

func BenchmarkFilter_Matches_BodyFilter(b *testing.B) {
	f, err := New(Options{
		IncludeBody: []string{"important.*content"},
	})
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Matches(benchRecord)
	}
}

func BenchmarkSplitRawMessage(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		SplitRawMessage(benchRecord.Message)
	}
}
