package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/garnizeh/estate/internal/repository/sqlite"
	"github.com/garnizeh/estate/internal/validation"
	"github.com/garnizeh/estate/pkg/models"
	"github.com/garnizeh/estate/pkg/repository"
)

// adminInput mirrors the signup rules; admins never come from self-service signup.
type adminInput struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

var admin adminInput

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an administrator account",
	Long: `Create an administrator account.

Examples:
  estatectl create-admin --name "Site Admin" --email admin@example.com --password 's3cret-pass'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		in := admin
		in.Name = strings.TrimSpace(in.Name)
		in.Email = strings.ToLower(strings.TrimSpace(in.Email))
		if err := validation.New().Struct(&in); err != nil {
			return err
		}

		_, conn, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer conn.Close()

		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		u := &models.User{
			ID:            uuid.NewString(),
			Role:          models.RoleAdmin,
			Name:          in.Name,
			Email:         in.Email,
			EmailVerified: true,
			PasswordHash:  string(hash),
		}
		if err := sqlite.New(conn, nil).CreateUser(cmd.Context(), u); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return fmt.Errorf("a user with email %s already exists", in.Email)
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "admin %s created with id %s\n", u.Email, u.ID)
		return nil
	},
}

func init() {
	createAdminCmd.Flags().StringVar(&admin.Name, "name", "", "Display name")
	createAdminCmd.Flags().StringVar(&admin.Email, "email", "", "Login email")
	createAdminCmd.Flags().StringVar(&admin.Password, "password", "", "Password (8 to 72 characters)")
	_ = createAdminCmd.MarkFlagRequired("email")
	_ = createAdminCmd.MarkFlagRequired("password")
	rootCmd.AddCommand(createAdminCmd)
}
