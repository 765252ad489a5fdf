package ssh

import "testing"

func TestSecretCache(t *testing.T) {
	var cache secretCache

	if _, ok := cache.Get(); ok {
		t.Fatal("expected empty cache to be invalid")
	}

	cache.Set("s3cret")
	value, ok := cache.Get()
	if !ok || value != "s3cret" {
		t.Fatalf("expected cached 's3cret', got %q (valid=%v)", value, ok)
	}

	cache.Invalidate()
	value, ok = cache.Get()
	if ok {
		t.Error("expected cache to be invalid after Invalidate")
	}
	if value != "" {
		t.Errorf("expected invalidated value to be cleared, got %q", value)
	}

	cache.Set("")
	if _, ok := cache.Get(); !ok {
		t.Error("expected an explicitly set empty secret to be valid")
	}
}
