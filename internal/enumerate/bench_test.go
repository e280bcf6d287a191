package enumerate

import (
	"context"
	"fmt"
	"testing"

	"github.com/ppiankov/factorwatch/internal/model"
	"github.com/ppiankov/factorwatch/internal/solver"
)

func benchEnumerate(b *testing.B, backend string, k int) {
	b.Helper()
	factors := map[string]model.Scores{}
	for i := 0; i < k; i++ {
		factors[fmt.Sprintf("f%02d", i)] = eligibleScores()
	}
	cs := mustCompile(b, factors, nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		res, err := Run(context.Background(), cs, backend, Options{})
		if err != nil {
			b.Fatal(err)
		}
		if len(res.Solutions) != (1<<k)-1 {
			b.Fatalf("expected %d solutions, got %d", (1<<k)-1, len(res.Solutions))
		}
	}
}

func BenchmarkEnumerate_Gini4(b *testing.B)      { benchEnumerate(b, solver.BackendGini, 4) }
func BenchmarkEnumerate_Gini9(b *testing.B)      { benchEnumerate(b, solver.BackendGini, 9) }
func BenchmarkEnumerate_Gophersat4(b *testing.B) { benchEnumerate(b, solver.BackendGophersat, 4) }
func BenchmarkEnumerate_Gophersat9(b *testing.B) { benchEnumerate(b, solver.BackendGophersat, 9) }
