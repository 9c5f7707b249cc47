// Package bridge runs long-lived worker processes that serve thousands
// of sequential HTTP requests without leaking state between them.
//
// Each worker (App) owns a component registry split into persistent
// singletons and request-scoped factories, an event dispatcher whose
// per-request subscriptions are unwound after every request, a memory
// guard that asks for the worker to be recycled near its limit, and a
// session layer backed by pluggable stores (memory, Redis, Postgres).
//
// A minimal server:
//
//	router := chi.NewRouter()
//	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
//	    s := bridge.FromContext(r.Context())
//	    sess, _ := s.EnsureSession()
//	    fmt.Fprintf(w, "hello, visit %d", bridge.SessionValueOr(sess, "visits", 1))
//	})
//
//	p := bridge.NewPool(4,
//	    bridge.WithHandler(router),
//	    bridge.WithSessionStore(session.NewMemoryStore()),
//	    bridge.WithMemoryLimit("256M"),
//	)
//	log.Fatal(bridge.Run(":8080", p))
package bridge
