package grove

import (
	"testing"

	"github.com/ValentinKolb/sKV/lib/db"
	dbtesting "github.com/ValentinKolb/sKV/lib/db/testing"
)

func Test(t *testing.T) {
	dbtesting.RunStoreTests(t, "GroveStore", func() db.Store {
		return NewStore()
	})
}

func Benchmark(t *testing.B) {
	dbtesting.RunStoreBenchmarks(t, "GroveStore", func() db.Store {
		return NewStore()
	})
}
