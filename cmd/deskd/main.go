package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"deskhub.org/internal/attendance"
	"deskhub.org/internal/httpapi"
	"deskhub.org/internal/identity"
	"deskhub.org/internal/obs"
	"deskhub.org/internal/resource"
	"deskhub.org/internal/store/mem"
	"deskhub.org/internal/store/pg"
	"deskhub.org/internal/token"
)

var version = "0.3.1"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("DESKHUB_COMMIT"))

	addr := os.Getenv("DESKHUB_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	secret := os.Getenv("DESKHUB_AUTH_SECRET")
	if secret == "" {
		log.Fatal("DESKHUB_AUTH_SECRET is required")
	}

	tokens, err := token.NewManager(token.Config{SigningKey: []byte(secret)})
	if err != nil {
		log.Fatalf("token manager: %v", err)
	}

	var (
		users     identity.UserStore
		desks     identity.DeskStore
		sessions  attendance.Store
		resources resource.Store
		probe     httpapi.ReadyProbe
		pgStore   *pg.Store
	)
	if dsn := os.Getenv("DESKHUB_PG_DSN"); dsn != "" {
		pgStore, err = pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		users = pgStore.Users()
		desks = pgStore.Desks()
		sessions = pgStore.Sessions()
		resources = pgStore
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		// In-memory fallback for local development.
		m := mem.New()
		users = m.Users()
		desks = m.Desks()
		sessions = m.Sessions()
		resources = m
		log.Print("DESKHUB_PG_DSN not set, using in-memory store")
	}

	att := attendance.NewService(sessions)
	ids := identity.NewService(users, desks, tokens, att)
	res := resource.NewService(resources)

	var origins []string
	if raw := os.Getenv("DESKHUB_ALLOWED_ORIGINS"); raw != "" {
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}

	api := httpapi.New(ids, att, res, tokens, probe, httpapi.Config{
		Version:        version,
		CookieSecure:   os.Getenv("DESKHUB_ENV") == "production",
		AllowedOrigins: origins,
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting deskhub-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if pgStore != nil {
		_ = pgStore.Close()
	}
	log.Println("Stopped")
}
