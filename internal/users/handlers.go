package users

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/ageniuscoder/relaychat/internal/auth"
	"github.com/ageniuscoder/relaychat/internal/config"
	"github.com/ageniuscoder/relaychat/internal/httpx"
	"github.com/ageniuscoder/relaychat/internal/otp"
	"github.com/ageniuscoder/relaychat/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type Service struct {
	DB        *sql.DB
	JWTSecret string
	JWTTTLMin int
	Region    string
	OTP       otp.Service
}

type signupInitReq struct {
	Username string `json:"username" binding:"required"`
	Phone    string `json:"phone" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type signupVerifyReq struct {
	Username string `json:"username" binding:"required"`
	Phone    string `json:"phone" binding:"required"`
	Password string `json:"password" binding:"required"` // send again on verify
	OTP      string `json:"otp" binding:"required"`
}

type loginReq struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type forgotInitReq struct {
	Phone string `json:"phone" binding:"required"`
}

type forgotVerifyReq struct {
	Phone string `json:"phone" binding:"required"`
	OTP   string `json:"otp" binding:"required"`
}

type resetReq struct {
	Phone       string `json:"phone" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

func RegisterPublic(rg *gin.RouterGroup, db *sql.DB, cfg config.Config) {
	s := Service{
		DB:        db,
		JWTSecret: cfg.JWTSecret,
		JWTTTLMin: cfg.JWTTTLMin,
		Region:    cfg.PhoneRegion,
		OTP: otp.Service{
			DB:          db,
			Digits:      cfg.OTPDigits,
			TTL:         time.Duration(cfg.OTPTTLSec) * time.Second,
			TwilioSID:   cfg.TwilioSID,
			TwilioToken: cfg.TwilioToken,
			TwilioFrom:  cfg.TwilioFrom,
		},
	}

	rg.POST("/signup/initiate", s.signupInitiate)
	rg.POST("/signup/verify", s.signupVerify)
	rg.POST("/login", s.login)
	rg.POST("/forgot/initiate", s.forgotInitiate)
	rg.POST("/forgot/verify", s.forgotVerify)
	rg.PUT("/forgot/reset", s.resetPassword)
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			httpx.Err(c, http.StatusBadRequest, utils.ValidationErr(validationErrors))
			return false
		}
		httpx.Err(c, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (s Service) normalize(c *gin.Context, raw string) (string, bool) {
	phone, err := utils.NormalizePhone(raw, s.Region)
	if err != nil {
		httpx.Err(c, http.StatusBadRequest, "invalid phone number")
		return "", false
	}
	return phone, true
}

func (s Service) signupInitiate(c *gin.Context) {
	var req signupInitReq
	if !bindJSON(c, &req) {
		return
	}
	phone, ok := s.normalize(c, req.Phone)
	if !ok {
		return
	}

	var count int
	_ = s.DB.QueryRow(`SELECT COUNT(1) FROM users WHERE username=? OR phone_number=?`, req.Username, phone).Scan(&count)
	if count > 0 {
		httpx.Err(c, http.StatusConflict, "username or phone already exists")
		return
	}

	if _, err := s.OTP.Generate(phone, "signup"); err != nil {
		httpx.Err(c, http.StatusInternalServerError, "otp send failed")
		return
	}
	httpx.OK(c, gin.H{"message": "otp sent"})
}

func (s Service) signupVerify(c *gin.Context) {
	var req signupVerifyReq
	if !bindJSON(c, &req) {
		return
	}
	phone, ok := s.normalize(c, req.Phone)
	if !ok {
		return
	}

	verified, err := s.OTP.Verify(phone, "signup", req.OTP)
	if err != nil || !verified {
		httpx.Err(c, http.StatusUnauthorized, "invalid otp")
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "create user failed")
		return
	}
	res, err := s.DB.Exec(`INSERT INTO users (username, phone_number, password_hash) VALUES (?, ?, ?)`,
		req.Username, phone, hash)
	if err != nil {
		httpx.Err(c, http.StatusBadRequest, "create user failed")
		return
	}
	uid, _ := res.LastInsertId()

	tok, err := auth.NewToken(s.JWTSecret, uid, s.JWTTTLMin)
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "token generation failed")
		return
	}
	httpx.OK(c, gin.H{"token": tok, "user_id": uid})
}

func (s Service) login(c *gin.Context) {
	var req loginReq
	if !bindJSON(c, &req) {
		return
	}

	row := s.DB.QueryRow(`SELECT id, password_hash FROM users WHERE username=?`, req.Username)
	var id int64
	var hash string
	if err := row.Scan(&id, &hash); err != nil {
		httpx.Err(c, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := auth.CheckPassword(hash, req.Password); err != nil {
		httpx.Err(c, http.StatusUnauthorized, "invalid credentials")
		return
	}
	tok, err := auth.NewToken(s.JWTSecret, id, s.JWTTTLMin)
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "token generation failed")
		return
	}
	httpx.OK(c, gin.H{"token": tok, "user_id": id})
}

func (s Service) forgotInitiate(c *gin.Context) {
	var req forgotInitReq
	if !bindJSON(c, &req) {
		return
	}
	phone, ok := s.normalize(c, req.Phone)
	if !ok {
		return
	}
	if _, err := s.OTP.Generate(phone, "reset"); err != nil {
		httpx.Err(c, http.StatusInternalServerError, "otp send failed")
		return
	}
	httpx.OK(c, gin.H{"message": "otp sent"})
}

func (s Service) forgotVerify(c *gin.Context) {
	var req forgotVerifyReq
	if !bindJSON(c, &req) {
		return
	}
	phone, ok := s.normalize(c, req.Phone)
	if !ok {
		return
	}
	verified, err := s.OTP.Verify(phone, "reset", req.OTP)
	if err != nil || !verified {
		httpx.Err(c, http.StatusUnauthorized, "invalid otp")
		return
	}
	httpx.OK(c, gin.H{"message": "otp verified"})
}

func (s Service) resetPassword(c *gin.Context) {
	var req resetReq
	if !bindJSON(c, &req) {
		return
	}
	phone, ok := s.normalize(c, req.Phone)
	if !ok {
		return
	}
	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "update password failed")
		return
	}
	if _, err := s.DB.Exec(`UPDATE users SET password_hash=? WHERE phone_number=?`, hash, phone); err != nil {
		httpx.Err(c, http.StatusInternalServerError, "update password failed")
		return
	}
	httpx.OK(c, gin.H{"message": "password updated"})
}
