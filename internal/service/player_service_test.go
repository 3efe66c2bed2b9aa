package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"detective-llm/internal/repository"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newPlayerService() (*PlayerService, *repository.MemoryPlayerRepository) {
	repo := repository.NewMemoryPlayerRepository()
	return NewPlayerService(repo, zap.NewNop()), repo
}

func TestDailyLogin_CreatesPlayerWithInitialPoints(t *testing.T) {
	svc, _ := newPlayerService()
	svc.WithNow(fixedClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)))

	player, err := svc.DailyLogin(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("DailyLogin: %v", err)
	}
	if player.Points != InitialPoints {
		t.Fatalf("points = %d, quiero %d", player.Points, InitialPoints)
	}
	if player.Streak != 1 {
		t.Fatalf("streak = %d", player.Streak)
	}
	if player.LastLogin != "2026-03-10" {
		t.Fatalf("lastLogin = %q", player.LastLogin)
	}
}

func TestDailyLogin_SameDayIsIdempotent(t *testing.T) {
	svc, _ := newPlayerService()
	svc.WithNow(fixedClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)))

	first, _ := svc.DailyLogin(context.Background(), "abc123")

	svc.WithNow(fixedClock(time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)))
	second, err := svc.DailyLogin(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("DailyLogin: %v", err)
	}
	if second.Points != first.Points || second.Streak != first.Streak {
		t.Fatalf("segundo login del día cambió el estado: %+v vs %+v", second, first)
	}
}

func TestDailyLogin_ConsecutiveDayAwardsAndExtendsStreak(t *testing.T) {
	svc, _ := newPlayerService()
	svc.WithNow(fixedClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)))
	svc.DailyLogin(context.Background(), "abc123")

	svc.WithNow(fixedClock(time.Date(2026, 3, 11, 1, 0, 0, 0, time.UTC)))
	player, err := svc.DailyLogin(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("DailyLogin: %v", err)
	}
	if player.Points != InitialPoints+DailyLoginReward {
		t.Fatalf("points = %d", player.Points)
	}
	if player.Streak != 2 {
		t.Fatalf("streak = %d, quiero 2", player.Streak)
	}
}

func TestDailyLogin_GapResetsStreak(t *testing.T) {
	svc, _ := newPlayerService()
	svc.WithNow(fixedClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)))
	svc.DailyLogin(context.Background(), "abc123")
	svc.WithNow(fixedClock(time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)))
	svc.DailyLogin(context.Background(), "abc123")

	svc.WithNow(fixedClock(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)))
	player, err := svc.DailyLogin(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("DailyLogin: %v", err)
	}
	if player.Streak != 1 {
		t.Fatalf("streak = %d, quiero 1 tras el hueco", player.Streak)
	}
	if player.Points != InitialPoints+2*DailyLoginReward {
		t.Fatalf("points = %d", player.Points)
	}
}

func TestSpend(t *testing.T) {
	svc, _ := newPlayerService()
	svc.WithNow(fixedClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)))
	svc.DailyLogin(context.Background(), "abc123")

	player, err := svc.Spend(context.Background(), "abc123", GenerateCost)
	if err != nil {
		t.Fatalf("Spend: %v", err)
	}
	if player.Points != InitialPoints-GenerateCost {
		t.Fatalf("points = %d", player.Points)
	}

	if _, err := svc.Spend(context.Background(), "abc123", 1000); !errors.Is(err, ErrInsufficientPoints) {
		t.Fatalf("err = %v, quiero ErrInsufficientPoints", err)
	}
	if _, err := svc.Spend(context.Background(), "nadie", 1); !errors.Is(err, ErrInsufficientPoints) {
		t.Fatalf("jugador inexistente: err = %v", err)
	}
}

func TestGrant(t *testing.T) {
	svc, _ := newPlayerService()
	svc.WithNow(fixedClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)))
	svc.DailyLogin(context.Background(), "abc123")

	player, err := svc.Grant(context.Background(), "abc123", 20)
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if player.Points != InitialPoints+20 {
		t.Fatalf("points = %d", player.Points)
	}

	// Un descuento nunca deja el saldo por debajo de cero.
	player, err = svc.Grant(context.Background(), "abc123", -10000)
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if player.Points != 0 {
		t.Fatalf("points = %d, quiero 0", player.Points)
	}

	// Un jugador inexistente se crea con el saldo inicial antes de acreditar.
	player, err = svc.Grant(context.Background(), "nuevo", 15)
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if player.Points != InitialPoints+15 {
		t.Fatalf("points = %d", player.Points)
	}
}

func TestCredentialDigest(t *testing.T) {
	a := CredentialDigest("sk-una-clave")
	b := CredentialDigest("sk-una-clave")
	c := CredentialDigest("sk-otra-clave")

	if a != b {
		t.Fatal("la misma credencial debe producir la misma identidad")
	}
	if a == c {
		t.Fatal("credenciales distintas no pueden colisionar aquí")
	}
	if len(a) != 64 {
		t.Fatalf("longitud del digest = %d", len(a))
	}
}
