package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"detective-llm/internal/domain"
)

var ErrPlayerNotFound = errors.New("jugador no encontrado")

// PlayerRepository define el contrato de persistencia para el saldo de puntos.
type PlayerRepository interface {
	Get(ctx context.Context, id string) (domain.Player, error)
	Upsert(ctx context.Context, player domain.Player) error
}

// PgPlayerRepository implementa PlayerRepository usando pgxpool.
type PgPlayerRepository struct {
	pool *pgxpool.Pool
}

func NewPgPlayerRepository(pool *pgxpool.Pool) *PgPlayerRepository {
	return &PgPlayerRepository{pool: pool}
}

func (r *PgPlayerRepository) Get(ctx context.Context, id string) (domain.Player, error) {
	const query = `
		SELECT id, points, last_login, streak, created_at, updated_at
		FROM players
		WHERE id = $1
	`
	var p domain.Player
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.Points,
		&p.LastLogin,
		&p.Streak,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Player{}, ErrPlayerNotFound
	}
	return p, err
}

func (r *PgPlayerRepository) Upsert(ctx context.Context, player domain.Player) error {
	const query = `
		INSERT INTO players (id, points, last_login, streak, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			points = EXCLUDED.points,
			last_login = EXCLUDED.last_login,
			streak = EXCLUDED.streak,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query,
		player.ID,
		player.Points,
		player.LastLogin,
		player.Streak,
		player.CreatedAt,
		player.UpdatedAt,
	)
	return err
}

// MemoryPlayerRepository mantiene los jugadores en memoria cuando no hay
// base de datos configurada.
type MemoryPlayerRepository struct {
	mu      sync.Mutex
	players map[string]domain.Player
}

func NewMemoryPlayerRepository() *MemoryPlayerRepository {
	return &MemoryPlayerRepository{players: make(map[string]domain.Player)}
}

func (r *MemoryPlayerRepository) Get(_ context.Context, id string) (domain.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[id]
	if !ok {
		return domain.Player{}, ErrPlayerNotFound
	}
	return p, nil
}

func (r *MemoryPlayerRepository) Upsert(_ context.Context, player domain.Player) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if player.UpdatedAt.IsZero() {
		player.UpdatedAt = time.Now().UTC()
	}
	r.players[player.ID] = player
	return nil
}
