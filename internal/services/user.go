package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"direct-chat-backend/internal/models"
	"direct-chat-backend/internal/repository"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const jwtExpDays = 7

var validate = validator.New()

// UserService handles authentication and profile logic
type UserService struct {
	userRepo  repository.UserRepository
	media     ImageUploader
	jwtSecret string
}

// NewUserService creates a new user service
func NewUserService(userRepo repository.UserRepository, media ImageUploader, jwtSecret string) *UserService {
	return &UserService{
		userRepo:  userRepo,
		media:     media,
		jwtSecret: jwtSecret,
	}
}

// SignupRequest represents a request to create an account
type SignupRequest struct {
	FullName string `json:"fullName" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// LoginRequest represents a login attempt
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UpdateProfileRequest carries the mutable display fields
type UpdateProfileRequest struct {
	FullName   string `json:"fullName" validate:"omitempty,max=100"`
	ProfilePic string `json:"profilePic"`
}

// AuthResponse is returned on signup and login
type AuthResponse struct {
	*models.User
	Token string `json:"token"`
}

// Signup creates a new user
func (s *UserService) Signup(ctx context.Context, req SignupRequest) (*AuthResponse, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FullName = strings.TrimSpace(req.FullName)
	if err := validate.Struct(req); err != nil {
		return nil, validationError(describeValidation(err))
	}

	_, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err == nil {
		return nil, validationError("Email already exists")
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, serverError(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, serverError(fmt.Errorf("failed to hash password: %w", err))
	}

	now := time.Now()
	user := &models.User{
		ID:        uuid.New().String(),
		Email:     req.Email,
		FullName:  req.FullName,
		Password:  string(hash),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, serverError(err)
	}

	return s.authResponse(user)
}

// Login verifies credentials and issues a token
func (s *UserService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validate.Struct(req); err != nil {
		return nil, validationError(describeValidation(err))
	}

	user, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, unauthorizedError("Invalid credentials")
		}
		return nil, serverError(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, unauthorizedError("Invalid credentials")
	}

	return s.authResponse(user)
}

func (s *UserService) authResponse(user *models.User) (*AuthResponse, error) {
	token, err := s.GenerateJWT(user.ID)
	if err != nil {
		return nil, serverError(err)
	}
	user.Password = ""
	return &AuthResponse{User: user, Token: token}, nil
}

// GetUser returns a user without credentials
func (s *UserService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundError("User not found")
		}
		return nil, serverError(err)
	}
	user.Password = ""
	return user, nil
}

// UpdateProfile changes the display name and/or avatar
func (s *UserService) UpdateProfile(ctx context.Context, userID string, req UpdateProfileRequest) (*models.User, error) {
	req.FullName = strings.TrimSpace(req.FullName)
	if err := validate.Struct(req); err != nil {
		return nil, validationError(describeValidation(err))
	}
	if req.FullName == "" && req.ProfilePic == "" {
		return nil, validationError("Nothing to update")
	}

	var picURL string
	if req.ProfilePic != "" {
		url, err := s.media.UploadImage(ctx, FolderAvatars, req.ProfilePic)
		if err != nil {
			return nil, classifyUploadError(err)
		}
		picURL = url
	}

	user, err := s.userRepo.UpdateProfile(ctx, userID, req.FullName, picURL)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundError("User not found")
		}
		return nil, serverError(err)
	}
	return user, nil
}

// UpdatePushToken stores or clears the device token used for offline alerts
func (s *UserService) UpdatePushToken(ctx context.Context, userID, pushToken string) error {
	var tokenPtr *string
	if pushToken = strings.TrimSpace(pushToken); pushToken != "" {
		tokenPtr = &pushToken
	}
	if err := s.userRepo.UpdatePushToken(ctx, userID, tokenPtr); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFoundError("User not found")
		}
		return serverError(err)
	}
	return nil
}

// GenerateJWT generates a JWT token for a user
func (s *UserService) GenerateJWT(userID string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().AddDate(0, 0, jwtExpDays).Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateJWT validates a JWT token and returns the user ID
func (s *UserService) ValidateJWT(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})

	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user_id not found in token")
	}

	return userID, nil
}

// describeValidation turns validator output into a short client message
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return "Invalid email format"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// classifyUploadError separates bad input from asset host failures
func classifyUploadError(err error) error {
	switch {
	case errors.Is(err, errInvalidImage):
		return validationError("Invalid image")
	case errors.Is(err, errImageTooLarge):
		return validationError("Image is too large")
	default:
		return uploadError(err)
	}
}
