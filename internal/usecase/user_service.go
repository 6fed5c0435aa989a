package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/companionlab/billing-service/internal/domain/entity"
	"github.com/companionlab/billing-service/internal/domain/repository"
)

// UserService handles the identity-provider pipeline: account creation
// on signup, profile updates, and deletion. It never touches plan
// fields; those belong to the Reconciler.
type UserService struct {
	users  repository.UserAccountRepository
	logger *zap.Logger
}

func NewUserService(users repository.UserAccountRepository, logger *zap.Logger) *UserService {
	return &UserService{
		users:  users,
		logger: logger,
	}
}

type CreateUserParams struct {
	ClerkID   string
	Email     string
	Username  string
	FirstName string
	LastName  string
}

func (s *UserService) CreateUser(ctx context.Context, params CreateUserParams) error {
	if params.ClerkID == "" {
		return errors.New("clerk ID is required")
	}

	now := time.Now()
	account := &entity.UserAccount{
		ClerkID:   params.ClerkID,
		Email:     params.Email,
		Username:  params.Username,
		FirstName: params.FirstName,
		LastName:  params.LastName,
		Plan: entity.Plan{
			Name:   "",
			Status: entity.PlanStatusCanceled,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.users.Create(ctx, account)
	if err != nil {
		s.logger.Error("Failed to create user account",
			zap.String("clerk_id", params.ClerkID),
			zap.Error(err))
		return err
	}

	s.logger.Info("User account created", zap.String("clerk_id", params.ClerkID))
	return nil
}

func (s *UserService) UpdateUser(ctx context.Context, clerkID string, profile repository.ProfileUpdate) error {
	if clerkID == "" {
		return errors.New("clerk ID is required")
	}

	err := s.users.UpdateProfile(ctx, clerkID, profile)
	if err != nil {
		s.logger.Error("Failed to update user account",
			zap.String("clerk_id", clerkID),
			zap.Error(err))
		return err
	}

	return nil
}

func (s *UserService) DeleteUser(ctx context.Context, clerkID string) error {
	if clerkID == "" {
		return errors.New("clerk ID is required")
	}

	err := s.users.Delete(ctx, clerkID)
	if err != nil {
		s.logger.Error("Failed to delete user account",
			zap.String("clerk_id", clerkID),
			zap.Error(err))
		return err
	}

	s.logger.Info("User account deleted", zap.String("clerk_id", clerkID))
	return nil
}

func (s *UserService) GetByClerkID(ctx context.Context, clerkID string) (*entity.UserAccount, error) {
	if clerkID == "" {
		return nil, errors.New("clerk ID is required")
	}
	return s.users.GetByClerkID(ctx, clerkID)
}
