package middlewares

import (
	"context"
	"net/http"
	"time"

	"bitbucket.org/mktfocus/marketing_backend/config"
	"bitbucket.org/mktfocus/marketing_backend/models"
	"bitbucket.org/mktfocus/marketing_backend/utils"
	"github.com/gin-gonic/gin"
)

// SessionMiddleware resolves the opaque session token (redis-backed) into the
// username, agency and admin flag. Requests without a token pass through;
// handlers that need identity reject them.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("token")
		if token == "" {
			c.Next()
			return
		}
		username, exists, err := config.GetRedisValue("Token:" + token)
		if err != nil || !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := context.WithValue(c.Request.Context(), utils.ContextKeyToken, token)
		ctx = context.WithValue(ctx, utils.ContextKeyUsername, username)
		ctx = enrichWithUser(ctx, username)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func enrichWithUser(ctx context.Context, username string) context.Context {
	var user models.User
	exists, err := config.GetRedisObject("User:"+username, &user)
	if err != nil {
		return ctx
	}
	if !exists {
		db := config.GetDB()
		if db == nil {
			return ctx
		}
		if err := db.WithContext(ctx).
			Model(&models.User{}).
			Where("username = ?", username).
			Take(&user).Error; err != nil {
			return ctx
		}
		_ = config.SetRedisObject("User:"+username, user, 10*time.Minute)
	}

	if user.AgencyId != "" {
		ctx = utils.SetAgencyIdInContext(ctx, user.AgencyId)
	}
	ctx = utils.SetUserIdInContext(ctx, user.ID)
	if user.Role == models.UserRoleAdmin {
		ctx = utils.SetIsAdminInContext(ctx, true)
	}
	return ctx
}
