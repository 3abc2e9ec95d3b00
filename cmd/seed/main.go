package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DiggAiHH/abu-abad-sub000/internal/booking"
	"github.com/DiggAiHH/abu-abad-sub000/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(context.Background(), pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	therapists := makeIDs(20)
	patients := makeIDs(400)

	if err := seedSlots(context.Background(), pool, therapists, 40); err != nil {
		log.Fatalf("seed slots: %v", err)
	}

	// Identity lives in an external collaborator; print a few usable ids so
	// requests can be exercised by hand.
	log.Printf("sample therapist: %s", therapists[0])
	log.Printf("sample patient: %s", patients[0])
	log.Println("seed complete")
}

func makeIDs(n int) []uuid.UUID {
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
	}
	return ids
}

// seedSlots creates perTherapist non-overlapping future slots per therapist,
// back to back on a daily grid so the overlap invariant holds by
// construction.
func seedSlots(ctx context.Context, pool *pgxpool.Pool, therapists []uuid.UUID, perTherapist int) error {
	log.Printf("seeding %d slots for %d therapists", perTherapist, len(therapists))

	kinds := []booking.Kind{booking.KindVideo, booking.KindAudio, booking.KindInPerson}
	const batchSize = 200

	type slot struct {
		therapist uuid.UUID
		start     time.Time
	}

	var slots []slot
	base := time.Now().Truncate(time.Hour).Add(24 * time.Hour)
	for _, t := range therapists {
		for i := 0; i < perTherapist; i++ {
			day := i / 8
			hour := 9 + i%8
			start := base.AddDate(0, 0, day).Add(time.Duration(hour) * time.Hour)
			slots = append(slots, slot{therapist: t, start: start})
		}
	}

	for offset := 0; offset < len(slots); offset += batchSize {
		end := offset + batchSize
		if end > len(slots) {
			end = len(slots)
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for _, s := range slots[offset:end] {
			kind := kinds[gofakeit.Number(0, len(kinds)-1)]
			price := float64(gofakeit.Number(60, 180))
			endTime := s.start.Add(50 * time.Minute)

			_, err := tx.Exec(ctx, `
				INSERT INTO appointments (
					id, therapist_id, start_time, end_time, duration_minutes,
					kind, price, status, payment_status, room_id, created_at, updated_at
				) VALUES ($1, $2, $3, $4, 50, $5, $6, 'available', 'pending', $7, now(), now())
			`, uuid.New(), s.therapist, s.start, endTime, kind, price, uuid.New())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("slots seeded: %d/%d", end, len(slots))
	}

	log.Println("slots seeded")
	return nil
}
