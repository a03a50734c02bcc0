package ramp

import (
	"reflect"
	"testing"
)

func TestLinear(t *testing.T) {
	got := Linear(0.7, 0.8, 4)
	want := []float64{0.7, 0.725, 0.75, 0.775, 0.8}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Linear=%v want %v", got, want)
	}
	if got := Linear(0.9, 0.7, 2); !reflect.DeepEqual(got, []float64{0.9, 0.8, 0.7}) {
		t.Fatalf("descending=%v", got)
	}
	if got := Linear(0.7, 0.8, 0); !reflect.DeepEqual(got, []float64{0.8}) {
		t.Fatalf("zero steps=%v", got)
	}
}

func TestTriangle(t *testing.T) {
	got := Triangle(0.7, 0.8, 2)
	if want := []float64{0.7, 0.75, 0.8, 0.75}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Triangle=%v want %v", got, want)
	}
	if got := Triangle(0.7, 0.8, 1); len(got) != 2 {
		t.Fatalf("one step=%v", got)
	}
}
