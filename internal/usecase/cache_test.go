package usecase

import (
	"fmt"
	"testing"
)

func TestCacheNormalization(t *testing.T) {
	c := NewResponseCache(10)
	c.Put("How much is   EC2?", "answer", true)

	got, live, ok := c.Get("  how much is ec2?  ")
	if !ok || got != "answer" || !live {
		t.Errorf("Get = (%q, %v, %v), want (answer, true, true)", got, live, ok)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestCacheMiss(t *testing.T) {
	c := NewResponseCache(10)
	if _, _, ok := c.Get("anything"); ok {
		t.Error("Get on empty cache returned a hit")
	}
}

func TestCacheKeepsProducingTier(t *testing.T) {
	c := NewResponseCache(10)
	c.Put("estimate rds", "a knowledge-tier estimate", false)
	c.Put("price ec2", "a live-tier answer", true)

	if _, live, ok := c.Get("estimate rds"); !ok || live {
		t.Errorf("fallback entry = (live=%v, ok=%v), want (false, true)", live, ok)
	}
	if _, live, ok := c.Get("price ec2"); !ok || !live {
		t.Errorf("live entry = (live=%v, ok=%v), want (true, true)", live, ok)
	}
}

func TestCacheFIFOEviction(t *testing.T) {
	c := NewResponseCache(10)
	for i := 0; i < 11; i++ {
		c.Put(fmt.Sprintf("query %d", i), fmt.Sprintf("answer %d", i), true)
	}

	if c.Len() != 10 {
		t.Fatalf("Len = %d, want 10", c.Len())
	}
	if _, _, ok := c.Get("query 0"); ok {
		t.Error("oldest entry survived eviction")
	}
	if got, _, ok := c.Get("query 10"); !ok || got != "answer 10" {
		t.Errorf("newest entry = (%q, %v), want (answer 10, true)", got, ok)
	}
	if _, _, ok := c.Get("query 1"); !ok {
		t.Error("second-oldest entry should still be present")
	}
}

func TestCacheUpdateInPlace(t *testing.T) {
	c := NewResponseCache(2)
	c.Put("a", "one", false)
	c.Put("b", "two", false)
	c.Put("a", "one again", true)

	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
	got, live, _ := c.Get("a")
	if got != "one again" || !live {
		t.Errorf("updated entry = (%q, live=%v), want (one again, true)", got, live)
	}

	// Updating must not re-queue the key; "a" is still evicted first.
	c.Put("c", "three", false)
	if _, _, ok := c.Get("a"); ok {
		t.Error("updated key escaped its original eviction slot")
	}
	if _, _, ok := c.Get("b"); !ok {
		t.Error("key b evicted out of order")
	}
}

func TestCacheClear(t *testing.T) {
	c := NewResponseCache(10)
	c.Put("a", "one", true)
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", c.Len())
	}
	if _, _, ok := c.Get("a"); ok {
		t.Error("entry survived Clear")
	}
}
