package domwatch

import (
	"testing"
	"time"

	"golang.org/x/net/html"
)

func TestSchedulerOrder(t *testing.T) {
	base := time.Unix(1700000000, 0)
	a := &html.Node{Data: "a"}
	b := &html.Node{Data: "b"}
	c := &html.Node{Data: "c"}
	d := &html.Node{Data: "d"}

	s := NewScheduler()
	s.Push(Task{Due: base.Add(50 * time.Millisecond), Node: c})
	s.Push(Task{Due: base, Node: a})
	s.Push(Task{Due: base, Node: b})
	s.Push(Task{Due: base.Add(time.Second), Node: d})

	if next, ok := s.Next(); !ok || !next.Equal(base) {
		t.Fatalf("Next: got %v %v", next, ok)
	}
	if got := s.PopDue(base.Add(-time.Millisecond)); len(got) != 0 {
		t.Fatalf("nothing due yet, got %d", len(got))
	}

	got := s.PopDue(base.Add(100 * time.Millisecond))
	var names []string
	for _, task := range got {
		names = append(names, task.Node.Data)
	}
	if len(names) != 3 || names[0] != "a" || names[1] != "b" || names[2] != "c" {
		t.Fatalf("PopDue: got %v, want [a b c]", names)
	}
	if s.Len() != 1 {
		t.Errorf("Len: got %d, want 1", s.Len())
	}

	s.Clear()
	if _, ok := s.Next(); ok {
		t.Error("Next after Clear")
	}
}
