package filter

import (
	"strings"
	"testing"
)

var benchMessage = []byte(invoiceHeader +
	"Message-Id: <inv-2024-03@shop.example>\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	strings.Repeat("Your invoice for March is attached. The amount due is 42.00 EUR.\r\n", 40))

func BenchmarkFilter_AllowsMessage(b *testing.B) {
	benchmarks := []struct {
		name string
		opts Options
	}{
		{"NoFilters", Options{}},
		{"IncludeHeader", Options{IncludeHeader: []string{`From:.*@shop\.example`}}},
		{"ExcludeHeaderList", Options{ExcludeHeader: []string{`(?m)^List-Id:`, `(?m)^Precedence: bulk`}}},
		{"ExcludeBody", Options{ExcludeBody: []string{`(?i)unsubscribe`}}},
		{"IncludeBodyLate", Options{IncludeBody: []string{`EUR\.\s*$`}}},
	}

	for _, bm := range benchmarks {
		b.Run(bm.name, func(b *testing.B) {
			f, err := New(bm.opts)
			if err != nil {
				b.Fatal(err)
			}
			b.SetBytes(int64(len(benchMessage)))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				f.AllowsMessage(benchMessage)
			}
		})
	}
}
