package plugin

import (
	"fmt"
	"sync"
	"testing"
)

func TestRegisterAdapterUpserts(t *testing.T) {
	r := NewRegistry()
	v1 := &AdapterType{Name: "irc v1"}
	v2 := &AdapterType{Name: "irc v2"}

	r.RegisterAdapter("irc", v1)
	if got := r.Adapters()["irc"]; got != v1 {
		t.Fatalf("adapters[irc] = %v, want v1", got)
	}

	r.RegisterAdapter(" IRC ", v2)
	adapters := r.Adapters()
	if len(adapters) != 1 {
		t.Fatalf("expected one key, got %v", adapters)
	}
	if adapters["irc"] != v2 {
		t.Fatalf("adapters[irc] = %v, want v2", adapters["irc"])
	}
	if got, ok := r.Adapter("Irc"); !ok || got != v2 {
		t.Fatalf("Adapter(Irc) = %v, %v", got, ok)
	}
}

func TestAdaptersReturnsCopy(t *testing.T) {
	r := NewRegistry()
	r.RegisterAdapter("shell", &AdapterType{Name: "shell"})
	view := r.Adapters()
	delete(view, "shell")
	if _, ok := r.Adapter("shell"); !ok {
		t.Fatal("mutating the view changed the registry")
	}
}

func TestRegisterHandlerIsIdempotent(t *testing.T) {
	r := NewRegistry()
	h := &HandlerType{Name: "help"}
	r.RegisterHandler(h)
	r.RegisterHandler(h)
	r.RegisterHandler(nil)

	handlers := r.Handlers()
	if len(handlers) != 1 || handlers[0] != h {
		t.Fatalf("expected exactly one handler, got %v", handlers)
	}

	// Distinct types with the same name are distinct members.
	r.RegisterHandler(&HandlerType{Name: "help"})
	if n := len(r.Handlers()); n != 2 {
		t.Fatalf("expected 2 handlers, got %d", n)
	}
}

func TestHandlersOrderedByName(t *testing.T) {
	r := NewRegistry()
	for _, n := range []string{"web", "auth", "help"} {
		r.RegisterHandler(&HandlerType{Name: n})
	}
	var names []string
	for _, h := range r.Handlers() {
		names = append(names, h.Name)
	}
	if fmt.Sprint(names) != "[auth help web]" {
		t.Fatalf("unexpected order %v", names)
	}
}

func TestReset(t *testing.T) {
	r := NewRegistry()
	r.RegisterAdapter("shell", &AdapterType{})
	r.RegisterHandler(&HandlerType{})
	r.Reset()
	if len(r.Adapters()) != 0 || len(r.Handlers()) != 0 {
		t.Fatal("reset left entries behind")
	}
}

func TestConcurrentReadsDuringLoad(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			r.RegisterAdapter(fmt.Sprintf("a%d", i), &AdapterType{})
			r.RegisterHandler(&HandlerType{Name: fmt.Sprintf("h%d", i)})
		}(i)
		go func() {
			defer wg.Done()
			_ = r.Adapters()
			_ = r.Handlers()
		}()
	}
	wg.Wait()
	if len(r.Adapters()) != 8 || len(r.Handlers()) != 8 {
		t.Fatalf("lost registrations: %d adapters, %d handlers", len(r.Adapters()), len(r.Handlers()))
	}
}

func TestDefaultRegistryHelpers(t *testing.T) {
	defer Default.Reset()
	a := &AdapterType{Name: "x"}
	h := &HandlerType{Name: "y"}
	RegisterAdapter("x", a)
	RegisterHandler(h)
	if got, _ := Default.Adapter("x"); got != a {
		t.Fatal("adapter not in Default")
	}
	if hs := Default.Handlers(); len(hs) != 1 || hs[0] != h {
		t.Fatal("handler not in Default")
	}
}
