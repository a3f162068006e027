package table_test

import (
	"bytes"
	"testing"

	"dinocore/pkg/table"
)

func newPage(t *testing.T) table.Page {
	t.Helper()
	return table.Page{Data: make([]byte, 4096)}
}

func TestInsertGetRoundTrip(t *testing.T) {
	p := newPage(t)
	p.Init(7, table.InvalidPageID)

	slot, err := p.InsertTuple([]byte("hello"))
	if err != nil {
		t.Fatalf("InsertTuple: %v", err)
	}
	got, err := p.GetTuple(slot)
	if err != nil {
		t.Fatalf("GetTuple: %v", err)
	}
	if !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("GetTuple = %q, want %q", got, "hello")
	}
	if p.PageID() != 7 {
		t.Fatalf("PageID = %d, want 7", p.PageID())
	}
}

func TestMarkDeleteHidesTupleUntilRollback(t *testing.T) {
	p := newPage(t)
	p.Init(1, table.InvalidPageID)
	slot, _ := p.InsertTuple([]byte("value"))

	if err := p.MarkDelete(slot); err != nil {
		t.Fatalf("MarkDelete: %v", err)
	}
	if _, err := p.GetTuple(slot); err != table.ErrTupleDeleted {
		t.Fatalf("GetTuple after MarkDelete = %v, want ErrTupleDeleted", err)
	}
	if err := p.RollbackDelete(slot); err != nil {
		t.Fatalf("RollbackDelete: %v", err)
	}
	got, err := p.GetTuple(slot)
	if err != nil || !bytes.Equal(got, []byte("value")) {
		t.Fatalf("GetTuple after RollbackDelete = %q, %v", got, err)
	}
}

func TestApplyDeleteFreesSlotForReuse(t *testing.T) {
	p := newPage(t)
	p.Init(1, table.InvalidPageID)
	slot, _ := p.InsertTuple([]byte("aaa"))
	p.MarkDelete(slot)

	deleted, err := p.ApplyDelete(slot)
	if err != nil {
		t.Fatalf("ApplyDelete: %v", err)
	}
	if !bytes.Equal(deleted, []byte("aaa")) {
		t.Fatalf("ApplyDelete returned %q, want %q", deleted, "aaa")
	}

	newSlot, err := p.InsertTuple([]byte("bb"))
	if err != nil {
		t.Fatalf("InsertTuple after ApplyDelete: %v", err)
	}
	if newSlot != slot {
		t.Fatalf("new slot = %d, want reused slot %d", newSlot, slot)
	}
}

func TestUpdateTupleShiftsHeap(t *testing.T) {
	p := newPage(t)
	p.Init(1, table.InvalidPageID)
	s1, _ := p.InsertTuple([]byte("111"))
	s2, _ := p.InsertTuple([]byte("22"))

	old, err := p.UpdateTuple(s2, []byte("threethree"))
	if err != nil {
		t.Fatalf("UpdateTuple: %v", err)
	}
	if !bytes.Equal(old, []byte("22")) {
		t.Fatalf("old tuple = %q, want %q", old, "22")
	}
	got1, _ := p.GetTuple(s1)
	if !bytes.Equal(got1, []byte("111")) {
		t.Fatalf("unrelated tuple corrupted: %q", got1)
	}
	got2, _ := p.GetTuple(s2)
	if !bytes.Equal(got2, []byte("threethree")) {
		t.Fatalf("updated tuple = %q, want %q", got2, "threethree")
	}
}
