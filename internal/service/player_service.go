package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"go.uber.org/zap"

	"detective-llm/internal/domain"
	"detective-llm/internal/repository"
)

const (
	// Saldo inicial y recompensa diaria de puntos del jugador.
	InitialPoints    = 100
	DailyLoginReward = 50

	// Costes de las operaciones que consumen puntos.
	GenerateCost = 10
	VerifyStake  = 1
)

var ErrInsufficientPoints = errors.New("saldo de puntos insuficiente")

// CredentialDigest deriva la identidad del jugador a partir de su credencial
// opaca. La credencial en claro nunca se persiste ni se registra.
func CredentialDigest(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}

// PlayerService administra el saldo de puntos, el login diario y la racha.
type PlayerService struct {
	repo   repository.PlayerRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewPlayerService(repo repository.PlayerRepository, logger *zap.Logger) *PlayerService {
	return &PlayerService{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithNow fija el reloj del servicio; pensado para pruebas.
func (s *PlayerService) WithNow(now func() time.Time) *PlayerService {
	s.now = now
	return s
}

// DailyLogin crea al jugador si no existe y acredita la recompensa diaria
// una sola vez por fecha UTC. Días consecutivos incrementan la racha; un
// hueco la reinicia a 1.
func (s *PlayerService) DailyLogin(ctx context.Context, playerID string) (domain.Player, error) {
	now := s.now()
	today := now.Format("2006-01-02")

	player, err := s.repo.Get(ctx, playerID)
	if errors.Is(err, repository.ErrPlayerNotFound) {
		player = domain.Player{
			ID:        playerID,
			Points:    InitialPoints,
			LastLogin: today,
			Streak:    1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.Upsert(ctx, player); err != nil {
			return domain.Player{}, err
		}
		s.logger.Info("jugador creado", zap.String("player_id", playerID))
		return player, nil
	}
	if err != nil {
		return domain.Player{}, err
	}

	if player.LastLogin == today {
		return player, nil
	}

	yesterday := now.AddDate(0, 0, -1).Format("2006-01-02")
	if player.LastLogin == yesterday {
		player.Streak++
	} else {
		player.Streak = 1
	}
	player.Points += DailyLoginReward
	player.LastLogin = today
	player.UpdatedAt = now

	if err := s.repo.Upsert(ctx, player); err != nil {
		return domain.Player{}, err
	}
	s.logger.Info("recompensa diaria acreditada",
		zap.String("player_id", playerID),
		zap.Int("streak", player.Streak),
	)
	return player, nil
}

// Spend descuenta puntos del jugador; devuelve ErrInsufficientPoints si el
// saldo no alcanza. Un jugador inexistente se trata como saldo cero.
func (s *PlayerService) Spend(ctx context.Context, playerID string, amount int) (domain.Player, error) {
	player, err := s.repo.Get(ctx, playerID)
	if errors.Is(err, repository.ErrPlayerNotFound) {
		return domain.Player{}, ErrInsufficientPoints
	}
	if err != nil {
		return domain.Player{}, err
	}
	if player.Points < amount {
		return domain.Player{}, ErrInsufficientPoints
	}
	player.Points -= amount
	player.UpdatedAt = s.now()
	if err := s.repo.Upsert(ctx, player); err != nil {
		return domain.Player{}, err
	}
	return player, nil
}

// Grant acredita puntos (o los descuenta si amount es negativo, sin bajar de
// cero). Se usa para reembolsos y para el pago según la nota final.
func (s *PlayerService) Grant(ctx context.Context, playerID string, amount int) (domain.Player, error) {
	player, err := s.repo.Get(ctx, playerID)
	if errors.Is(err, repository.ErrPlayerNotFound) {
		now := s.now()
		player = domain.Player{ID: playerID, Points: InitialPoints, CreatedAt: now, UpdatedAt: now}
	} else if err != nil {
		return domain.Player{}, err
	}
	player.Points += amount
	if player.Points < 0 {
		player.Points = 0
	}
	player.UpdatedAt = s.now()
	if err := s.repo.Upsert(ctx, player); err != nil {
		return domain.Player{}, err
	}
	return player, nil
}

// Balance devuelve la ficha actual del jugador.
func (s *PlayerService) Balance(ctx context.Context, playerID string) (domain.Player, error) {
	return s.repo.Get(ctx, playerID)
}
