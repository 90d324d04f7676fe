package limiter

import "testing"

func TestAllowCapsPerKey(t *testing.T) {
    s := New(2)
    r1, ok1 := s.Allow("openai/gpt-4.1-mini")
    _, ok2 := s.Allow("OpenAI/gpt-4.1-mini")
    if !ok1 || !ok2 {
        t.Fatal("expected first two reservations to succeed")
    }
    if _, ok := s.Allow("openai/gpt-4.1-mini"); ok {
        t.Fatal("expected third reservation to be rejected")
    }
    if got := s.InUse("openai/gpt-4.1-mini"); got != 2 {
        t.Fatalf("InUse = %d, want 2", got)
    }
    if _, ok := s.Allow("gemini/gemini-2.0-flash"); !ok {
        t.Fatal("other keys must not share slots")
    }
    r1()
    if _, ok := s.Allow("openai/gpt-4.1-mini"); !ok {
        t.Fatal("expected slot after release")
    }
}

func TestDefaultCapacity(t *testing.T) {
    s := New(0)
    for i := 0; i < 2; i++ {
        if _, ok := s.Allow("k"); !ok {
            t.Fatalf("reservation %d rejected", i)
        }
    }
    if _, ok := s.Allow("k"); ok {
        t.Fatal("expected default capacity of 2")
    }
}
