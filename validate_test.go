package accounts_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	accounts "github.com/virtualgta/go-accounts"
)

func validSignUpForm() accounts.SignUpForm {
	return accounts.SignUpForm{
		Email:           "ada@example.com",
		Password:        "Sup3r$ecret",
		ConfirmPassword: "Sup3r$ecret",
		FirstName:       "Ada",
		LastName:        "Lovelace",
		Username:        "ada",
	}
}

func TestSignUpFormValidate(t *testing.T) {
	t.Run("accepts a complete form", func(t *testing.T) {
		assert.NoError(t, validSignUpForm().Validate())
	})

	t.Run("mismatched passwords reject before any other rule", func(t *testing.T) {
		form := validSignUpForm()
		form.Email = "not-an-email"
		form.ConfirmPassword = "different"

		err := form.Validate()
		require.ErrorIs(t, err, accounts.ErrPasswordMismatch)
	})

	t.Run("short passwords are rejected", func(t *testing.T) {
		form := validSignUpForm()
		form.Password = "Sh0r$t"
		form.ConfirmPassword = "Sh0r$t"

		err := form.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least 8 characters")
	})

	t.Run("weak passwords are rejected", func(t *testing.T) {
		form := validSignUpForm()
		form.Password = "alllowercase1"
		form.ConfirmPassword = "alllowercase1"

		err := form.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "too weak")
	})

	t.Run("missing fields are rejected", func(t *testing.T) {
		form := validSignUpForm()
		form.FirstName = ""

		assert.Error(t, form.Validate())
	})

	t.Run("invalid email is rejected", func(t *testing.T) {
		form := validSignUpForm()
		form.Email = "not-an-email"

		assert.Error(t, form.Validate())
	})
}

func TestSignUpFormMetadataTrimsFields(t *testing.T) {
	form := accounts.SignUpForm{
		FirstName: "  Ada ",
		LastName:  " Lovelace",
		Username:  "ada ",
	}

	meta := form.Metadata()
	assert.Equal(t, "Ada", meta.FirstName)
	assert.Equal(t, "Lovelace", meta.LastName)
	assert.Equal(t, "ada", meta.Username)
}

func TestSignInFormValidate(t *testing.T) {
	assert.NoError(t, accounts.SignInForm{Email: "ada@example.com", Password: "pw"}.Validate())
	assert.Error(t, accounts.SignInForm{Email: "nope", Password: "pw"}.Validate())
	assert.Error(t, accounts.SignInForm{Email: "ada@example.com"}.Validate())
}

func TestInviteFormValidate(t *testing.T) {
	valid := accounts.InviteForm{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Username:  "ada",
		Password:  "simple",
	}
	assert.NoError(t, valid.Validate())

	t.Run("invite passwords only need 6 characters", func(t *testing.T) {
		short := valid
		short.Password = "five5"

		err := short.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least 6 characters")
	})

	t.Run("names are required", func(t *testing.T) {
		form := valid
		form.Username = ""
		assert.Error(t, form.Validate())
	})
}
