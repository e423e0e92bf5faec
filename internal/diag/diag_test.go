package diag

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func failure(i int) Failure {
	return Failure{Kind: KindTrigger, Site: "s", Observer: fmt.Sprint(i), Error: "boom"}
}

func TestRecorder_KeepsOrder(t *testing.T) {
	r := NewRecorder(3)
	r.Record(failure(1))
	r.Record(failure(2))

	got := r.Failures()
	assert.Len(t, got, 2)
	assert.Equal(t, "1", got[0].Observer)
	assert.Equal(t, "2", got[1].Observer)
}

func TestRecorder_Wraps(t *testing.T) {
	r := NewRecorder(3)
	for i := 1; i <= 5; i++ {
		r.Record(failure(i))
	}

	var observers []string
	for _, f := range r.Failures() {
		observers = append(observers, f.Observer)
	}
	assert.Equal(t, []string{"3", "4", "5"}, observers)
	assert.Equal(t, uint64(5), r.Total())
}

func TestRecorder_Reset(t *testing.T) {
	r := NewRecorder(0)
	r.Record(failure(1))
	r.Reset()

	assert.Empty(t, r.Failures())
	assert.Zero(t, r.Total())
}

func TestRecorder_Nil(t *testing.T) {
	var r *Recorder
	r.Record(failure(1))
	r.Reset()
	assert.Nil(t, r.Failures())
	assert.Zero(t, r.Total())
}
