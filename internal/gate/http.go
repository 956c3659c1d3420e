package gate

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/SmartParkGate/SmartParkGate/internal/capacity"
	"github.com/SmartParkGate/SmartParkGate/internal/common/config"
	"github.com/SmartParkGate/SmartParkGate/internal/common/logger"
	"github.com/SmartParkGate/SmartParkGate/internal/common/server"
	"github.com/SmartParkGate/SmartParkGate/internal/platereader"
	"github.com/SmartParkGate/SmartParkGate/internal/session"
	"github.com/SmartParkGate/SmartParkGate/internal/vehicle"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// maxImageBytes 图片入场的请求体上限。
const maxImageBytes = 8 << 20

// Server 闸机 HTTP 层：把会话用例映射到路由，并做错误码翻译。
type Server struct {
	svc      *session.Service
	vehicles *vehicle.Repo
	reader   platereader.Reader // 可为 nil（未配置识别服务）
	authCfg  config.AuthConfig
	log      logger.Logger
}

func NewServer(svc *session.Service, vehicles *vehicle.Repo, reader platereader.Reader, authCfg config.AuthConfig, log logger.Logger) *Server {
	return &Server{
		svc:      svc,
		vehicles: vehicles,
		reader:   reader,
		authCfg:  authCfg,
		log:      log,
	}
}

// Register 挂载路由。
func (s *Server) Register(r *gin.Engine) error {
	api := r.Group("/api/parking")
	api.POST("/checkin/:plate", s.checkIn)
	api.POST("/checkin-image", s.checkInImage)
	api.POST("/checkout/:plate", s.checkOut)
	api.POST("/confirm/:session_id", s.confirm)
	api.POST("/confirm-unregistered/:session_id", s.confirmUnregistered)
	api.GET("/open/:plate", s.openSession)

	admin := r.Group("/api/admin")
	admin.Use(
		server.JWTAuthMiddleware(s.authCfg, s.log),
		server.RequireRoles(s.authCfg, "admin"),
	)
	admin.GET("/occupied", s.occupiedAt)
	admin.POST("/vehicles/:plate/ban", s.banVehicle)
	admin.POST("/vehicles/:plate/unban", s.unbanVehicle)
	return nil
}

func (s *Server) checkIn(c *gin.Context) {
	res, err := s.svc.CheckIn(c.Request.Context(), c.Param("plate"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session":        toSessionJSON(res.Session),
		"already_parked": res.AlreadyParked,
		"tariff_name":    res.TariffName,
		"tariff_rate":    res.Rate,
	})
}

// checkInImage 图片入场：先走外部识别服务拿车牌，再复用入场流程。
func (s *Server) checkInImage(c *gin.Context) {
	if s.reader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "plate recognition not configured"})
		return
	}

	image, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImageBytes))
	if err != nil || len(image) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image body required"})
		return
	}

	plate, err := s.reader.Recognize(c.Request.Context(), image)
	if err != nil {
		if errors.Is(err, platereader.ErrPlateNotFound) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "license plate not found"})
			return
		}
		if s.log != nil {
			s.log.Warnf("plate recognition failed: %v", err)
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "plate recognition unavailable"})
		return
	}

	res, err := s.svc.CheckIn(c.Request.Context(), plate)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session":        toSessionJSON(res.Session),
		"already_parked": res.AlreadyParked,
		"tariff_name":    res.TariffName,
		"tariff_rate":    res.Rate,
	})
}

func (s *Server) checkOut(c *gin.Context) {
	inv, err := s.svc.CheckOut(c.Request.Context(), c.Param("plate"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session":          toSessionJSON(inv.Session),
		"already_invoiced": inv.AlreadyInvoiced,
		"tariff_name":      inv.TariffName,
		"tariff_rate":      inv.Rate,
	})
}

func (s *Server) confirm(c *gin.Context) {
	sess, err := s.svc.ConfirmPayment(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": toSessionJSON(sess)})
}

func (s *Server) confirmUnregistered(c *gin.Context) {
	sess, err := s.svc.ConfirmPaymentUnregistered(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": toSessionJSON(sess)})
}

func (s *Server) openSession(c *gin.Context) {
	sess, err := s.svc.GetOpenSession(c.Request.Context(), c.Param("plate"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	if sess == nil {
		c.JSON(http.StatusOK, gin.H{"open": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"open": true, "session": toSessionJSON(sess)})
}

func (s *Server) occupiedAt(c *gin.Context) {
	at := c.Query("at")
	count, err := s.svc.OccupiedAt(c.Request.Context(), at)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"at": at, "count": count})
}

func (s *Server) banVehicle(c *gin.Context) {
	s.setBanned(c, true)
}

func (s *Server) unbanVehicle(c *gin.Context) {
	s.setBanned(c, false)
}

func (s *Server) setBanned(c *gin.Context, banned bool) {
	err := s.vehicles.SetBanned(c.Request.Context(), c.Param("plate"), banned)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "vehicle not found"})
			return
		}
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plate": vehicle.NormalizePlate(c.Param("plate")), "banned": banned})
}

// renderError 业务错误到 HTTP 状态码的统一翻译。
func (s *Server) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, capacity.ErrCapacityExceeded):
		c.JSON(http.StatusConflict, gin.H{"error": "parking capacity exceeded"})
	case errors.Is(err, session.ErrVehicleBanned):
		c.JSON(http.StatusForbidden, gin.H{"error": "vehicle is banned"})
	case errors.Is(err, session.ErrNotParked):
		c.JSON(http.StatusNotFound, gin.H{"error": "vehicle is not parked"})
	case errors.Is(err, session.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "parking session not found"})
	case errors.Is(err, session.ErrNotInvoiced):
		c.JSON(http.StatusConflict, gin.H{"error": "parking session not invoiced"})
	case errors.Is(err, session.ErrInvalidTimestamp):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid timestamp, expected YYYY.MM.DD HH:MM"})
	default:
		if s.log != nil {
			s.log.Errorf("gate internal error: %v", err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

type sessionJSON struct {
	ID            string   `json:"id"`
	Plate         string   `json:"plate"`
	State         string   `json:"state"`
	EnterTime     string   `json:"enter_time"`
	DepartureTime *string  `json:"departure_time,omitempty"`
	DurationHours *float64 `json:"duration_hours,omitempty"`
	AmountDue     *float64 `json:"amount_due,omitempty"`
}

func toSessionJSON(s *session.ParkingSession) *sessionJSON {
	if s == nil {
		return nil
	}
	out := &sessionJSON{
		ID:            s.ID,
		Plate:         s.Plate,
		State:         string(s.State),
		EnterTime:     s.EnterTime.Format(time.RFC3339),
		DurationHours: s.DurationHours,
		AmountDue:     s.AmountDue,
	}
	if s.DepartureTime != nil {
		t := s.DepartureTime.Format(time.RFC3339)
		out.DepartureTime = &t
	}
	return out
}
