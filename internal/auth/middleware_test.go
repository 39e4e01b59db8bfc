package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"procurement-backend/internal/models"
	"procurement-backend/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func testApp(secret string, db *gorm.DB) *fiber.App {
	app := fiber.New()
	app.Use(JWTMiddleware(secret, db))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		actor, err := ActorFrom(c)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"id": actor.ID, "role": actor.Role, "name": actor.Name})
	})
	app.Get("/admin", RequireRole(models.RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func get(t *testing.T, app *fiber.App, path, header string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestJWTMiddleware(t *testing.T) {
	db := testutil.NewDB(t)
	app := testApp("s3cret", db)
	user, _ := testutil.CreateUser(t, db, "clerk", models.RoleUser)
	admin, _ := testutil.CreateUser(t, db, "root", models.RoleAdmin)

	userToken, err := GenerateToken("s3cret", &user)
	require.NoError(t, err)
	adminToken, err := GenerateToken("s3cret", &admin)
	require.NoError(t, err)
	foreignToken, err := GenerateToken("other", &user)
	require.NoError(t, err)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &JWTCustomClaims{
		UserID: user.ID, Role: models.RoleUser,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
	})
	expiredToken, err := expired.SignedString([]byte("s3cret"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, get(t, app, "/whoami", ""))
	assert.Equal(t, http.StatusUnauthorized, get(t, app, "/whoami", "Token "+userToken))
	assert.Equal(t, http.StatusUnauthorized, get(t, app, "/whoami", "Bearer "+foreignToken))
	assert.Equal(t, http.StatusUnauthorized, get(t, app, "/whoami", "Bearer "+expiredToken))
	assert.Equal(t, http.StatusOK, get(t, app, "/whoami", "Bearer "+userToken))

	assert.Equal(t, http.StatusForbidden, get(t, app, "/admin", "Bearer "+userToken))
	assert.Equal(t, http.StatusNoContent, get(t, app, "/admin", "Bearer "+adminToken))
}

func TestTokenWithUnknownRoleIsRejected(t *testing.T) {
	db := testutil.NewDB(t)
	app := testApp("s3cret", db)
	token, err := GenerateToken("s3cret", &models.User{ID: 9, Role: "Guest"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(t, app, "/whoami", "Bearer "+token))
}

func TestLiveTokenFollowsAccountChanges(t *testing.T) {
	db := testutil.NewDB(t)
	app := testApp("s3cret", db)
	admin, _ := testutil.CreateUser(t, db, "root", models.RoleAdmin)
	token, err := GenerateToken("s3cret", &admin)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, get(t, app, "/admin", "Bearer "+token))

	require.NoError(t, db.Model(&models.User{}).Where("id = ?", admin.ID).Update("role", models.RoleUser).Error)
	assert.Equal(t, http.StatusForbidden, get(t, app, "/admin", "Bearer "+token))

	require.NoError(t, db.Delete(&models.User{}, admin.ID).Error)
	assert.Equal(t, http.StatusUnauthorized, get(t, app, "/whoami", "Bearer "+token))
}
