package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/campusflow/sms-api/api/swagger"
	"github.com/campusflow/sms-api/internal/handler"
	"github.com/campusflow/sms-api/internal/middleware"
	"github.com/campusflow/sms-api/internal/models"
	"github.com/campusflow/sms-api/internal/policy"
	"github.com/campusflow/sms-api/internal/repository"
	"github.com/campusflow/sms-api/internal/service"
	"github.com/campusflow/sms-api/pkg/cache"
	"github.com/campusflow/sms-api/pkg/config"
	"github.com/campusflow/sms-api/pkg/database"
	"github.com/campusflow/sms-api/pkg/logger"
	"github.com/campusflow/sms-api/pkg/mail"
	corsmiddleware "github.com/campusflow/sms-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campusflow/sms-api/pkg/middleware/requestid"
	"github.com/campusflow/sms-api/pkg/storage"
)

// @title CampusFlow SMS API
// @version 1.0.0
// @description Multi-tenant school management backend
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	rdb, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect redis", "error", err)
	}
	defer rdb.Close() //nolint:errcheck

	store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare report storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	parentRepo := repository.NewParentRepository(db)
	classRepo := repository.NewClassRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	examRepo := repository.NewExamRepository(db)
	markRepo := repository.NewMarkRepository(db)
	homeworkRepo := repository.NewHomeworkRepository(db)
	feeRepo := repository.NewFeeRepository(db)
	timetableRepo := repository.NewTimetableRepository(db)
	announcementRepo := repository.NewAnnouncementRepository(db)
	leaveRepo := repository.NewLeaveRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	cacheRepo := repository.NewCacheRepository(rdb)

	validate := validator.New()
	policyEngine := policy.NewEngine(profileRepo, logr)
	metricsSvc := service.NewMetricsService()

	mailer := mail.New(cfg.Mail, logr)
	notificationSvc := service.NewNotificationService(mailer, cfg.Mail, metricsSvc, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notificationSvc.Start(ctx)
	defer notificationSvc.Stop()

	// Services.
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret:        cfg.JWT.Secret,
		AccessExpiry:  cfg.JWT.Expiration,
		RefreshExpiry: cfg.JWT.RefreshExpiration,
	})
	adminSvc := service.NewAdminService(userRepo, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, userRepo, classRepo, policyEngine, notificationSvc, validate, logr)
	teacherSvc := service.NewTeacherService(teacherRepo, userRepo, notificationSvc, validate, logr)
	parentSvc := service.NewParentService(parentRepo, userRepo, studentRepo, notificationSvc, validate, logr)
	classSvc := service.NewClassService(classRepo, studentRepo, subjectRepo, teacherRepo, validate, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, studentRepo, policyEngine, validate, logr, cfg.Attendance.DefaulterThreshold)
	examSvc := service.NewExamService(examRepo, classRepo, subjectRepo, validate, logr)
	markSvc := service.NewMarkService(markRepo, examRepo, studentRepo, policyEngine, validate, logr)
	homeworkSvc := service.NewHomeworkService(homeworkRepo, studentRepo, classRepo, subjectRepo, teacherRepo, policyEngine, validate, logr)
	feeSvc := service.NewFeeService(feeRepo, studentRepo, policyEngine, validate, logr)
	timetableSvc := service.NewTimetableService(timetableRepo, classRepo, subjectRepo, teacherRepo, validate, logr)
	announcementSvc := service.NewAnnouncementService(announcementRepo, userRepo, notificationSvc, policyEngine, validate, logr)
	leaveSvc := service.NewLeaveService(leaveRepo, studentRepo, policyEngine, validate, logr)
	dashboardSvc := service.NewDashboardService(service.DashboardRepos{
		Students:      studentRepo,
		Teachers:      teacherRepo,
		Parents:       parentRepo,
		Classes:       classRepo,
		Attendance:    attendanceRepo,
		Exams:         examRepo,
		Marks:         markRepo,
		Fees:          feeRepo,
		Leaves:        leaveRepo,
		Timetable:     timetableRepo,
		Announcements: announcementRepo,
		Homework:      homeworkRepo,
	}, cacheRepo, policyEngine, metricsSvc, logr, cfg.Dashboard.CacheTTL)
	reportSvc := service.NewReportService(attendanceRepo, feeRepo, markRepo, store, signer, logr)

	// Sweep expired export files in the background.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				reportSvc.Cleanup(cfg.Reports.Retention)
			}
		}
	}()

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	adminHandler := handler.NewAdminHandler(adminSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	teacherHandler := handler.NewTeacherHandler(teacherSvc)
	parentHandler := handler.NewParentHandler(parentSvc)
	classHandler := handler.NewClassHandler(classSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	examHandler := handler.NewExamHandler(examSvc)
	markHandler := handler.NewMarkHandler(markSvc)
	homeworkHandler := handler.NewHomeworkHandler(homeworkSvc)
	feeHandler := handler.NewFeeHandler(feeSvc)
	timetableHandler := handler.NewTimetableHandler(timetableSvc)
	announcementHandler := handler.NewAnnouncementHandler(announcementSvc)
	leaveHandler := handler.NewLeaveHandler(leaveSvc)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc)
	reportHandler := handler.NewReportHandler(reportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db, rdb)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
		auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
	}

	// Report downloads carry their own signed token.
	api.GET("/reports/download", reportHandler.Download)

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))
	protected.Use(middleware.CacheInvalidation(cacheRepo, service.DashboardCachePrefix, logr))

	adminOnly := middleware.RequireRoles(models.RoleAdmin, models.RoleMaster)
	staffOnly := middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin, models.RoleMaster)
	masterOnly := middleware.RequireRoles(models.RoleMaster)

	admins := protected.Group("/admins", masterOnly)
	{
		admins.POST("", adminHandler.Create)
		admins.GET("", adminHandler.List)
		admins.POST("/:id/approve", adminHandler.Approve)
		admins.POST("/:id/deactivate", adminHandler.Deactivate)
		admins.DELETE("/:id", adminHandler.Delete)
	}

	students := protected.Group("/students")
	{
		students.GET("", studentHandler.List)
		students.GET("/:id", studentHandler.Get)
		students.POST("", adminOnly, studentHandler.Create)
		students.PUT("/:id", adminOnly, studentHandler.Update)
		students.DELETE("/:id", adminOnly, studentHandler.Delete)
	}

	teachers := protected.Group("/teachers")
	{
		teachers.GET("", teacherHandler.List)
		teachers.GET("/:id", teacherHandler.Get)
		teachers.POST("", adminOnly, teacherHandler.Create)
		teachers.PUT("/:id", adminOnly, teacherHandler.Update)
		teachers.DELETE("/:id", adminOnly, teacherHandler.Delete)
	}

	parents := protected.Group("/parents", adminOnly)
	{
		parents.GET("", parentHandler.List)
		parents.GET("/:id", parentHandler.Get)
		parents.POST("", parentHandler.Create)
		parents.PUT("/:id", parentHandler.Update)
		parents.DELETE("/:id", parentHandler.Delete)
		parents.POST("/:id/students", parentHandler.LinkStudent)
		parents.DELETE("/:id/students/:studentId", parentHandler.UnlinkStudent)
	}

	classes := protected.Group("/classes")
	{
		classes.GET("", classHandler.List)
		classes.GET("/:id", classHandler.Get)
		classes.GET("/:id/students", classHandler.ListStudents)
		classes.GET("/:id/subjects", classHandler.ListSubjects)
		classes.POST("", adminOnly, classHandler.Create)
		classes.PUT("/:id", adminOnly, classHandler.Update)
		classes.PUT("/:id/teacher", adminOnly, classHandler.AssignTeacher)
		classes.DELETE("/:id", adminOnly, classHandler.Delete)
		classes.POST("/:id/subjects", adminOnly, classHandler.AddSubject)
		classes.DELETE("/:id/subjects/:subjectId", adminOnly, classHandler.DeleteSubject)
	}

	attendance := protected.Group("/attendance")
	{
		attendance.GET("", attendanceHandler.List)
		attendance.GET("/students/:id/statistics", attendanceHandler.StudentStatistics)
		attendance.POST("", staffOnly, attendanceHandler.Mark)
		attendance.POST("/bulk", staffOnly, attendanceHandler.BulkMark)
		attendance.PUT("/:id", staffOnly, attendanceHandler.Update)
		attendance.DELETE("/:id", adminOnly, attendanceHandler.Delete)
		attendance.GET("/classes/:id/statistics", staffOnly, attendanceHandler.ClassStatistics)
		attendance.GET("/classes/:id/roster", staffOnly, attendanceHandler.ClassRoster)
		attendance.GET("/defaulters", staffOnly, attendanceHandler.Defaulters)
	}

	exams := protected.Group("/exams")
	{
		exams.GET("", examHandler.List)
		exams.GET("/:id", examHandler.Get)
		exams.POST("", staffOnly, examHandler.Create)
		exams.PUT("/:id", staffOnly, examHandler.Update)
		exams.DELETE("/:id", staffOnly, examHandler.Delete)
	}

	marks := protected.Group("/marks")
	{
		marks.GET("", markHandler.List)
		marks.GET("/:id", markHandler.Get)
		marks.GET("/students/:id/performance", markHandler.StudentPerformance)
		marks.POST("", staffOnly, markHandler.Record)
		marks.POST("/bulk", staffOnly, markHandler.BulkRecord)
		marks.PUT("/:id", staffOnly, markHandler.Update)
		marks.DELETE("/:id", staffOnly, markHandler.Delete)
	}

	homework := protected.Group("/homework")
	{
		homework.GET("", homeworkHandler.List)
		homework.GET("/:id", homeworkHandler.Get)
		homework.POST("", staffOnly, homeworkHandler.Create)
		homework.PUT("/:id", staffOnly, homeworkHandler.Update)
		homework.DELETE("/:id", staffOnly, homeworkHandler.Delete)
		homework.POST("/:id/submissions", middleware.RequireRoles(models.RoleStudent), homeworkHandler.Submit)
		homework.GET("/:id/submissions", staffOnly, homeworkHandler.ListSubmissions)
		homework.PUT("/submissions/:submissionId/grade", staffOnly, homeworkHandler.GradeSubmission)
	}

	fees := protected.Group("/fees")
	{
		fees.GET("", feeHandler.List)
		fees.GET("/summary", adminOnly, feeHandler.Summary)
		fees.GET("/:id", feeHandler.Get)
		fees.POST("", adminOnly, feeHandler.Create)
		fees.PUT("/:id", adminOnly, feeHandler.Update)
		fees.POST("/:id/pay", adminOnly, feeHandler.Pay)
		fees.DELETE("/:id", adminOnly, feeHandler.Delete)
	}

	timetable := protected.Group("/timetable")
	{
		timetable.GET("", timetableHandler.List)
		timetable.GET("/:id", timetableHandler.Get)
		timetable.POST("", adminOnly, timetableHandler.Create)
		timetable.PUT("/:id", adminOnly, timetableHandler.Update)
		timetable.DELETE("/:id", adminOnly, timetableHandler.Delete)
	}

	announcements := protected.Group("/announcements")
	{
		announcements.GET("", announcementHandler.List)
		announcements.GET("/:id", announcementHandler.Get)
		announcements.POST("", staffOnly, announcementHandler.Create)
		announcements.PUT("/:id", staffOnly, announcementHandler.Update)
		announcements.DELETE("/:id", staffOnly, announcementHandler.Delete)
	}

	leaves := protected.Group("/leaves")
	{
		leaves.GET("", leaveHandler.List)
		leaves.GET("/:id", leaveHandler.Get)
		leaves.POST("", leaveHandler.Create)
		leaves.PUT("/:id/review", staffOnly, leaveHandler.Review)
		leaves.DELETE("/:id", leaveHandler.Delete)
	}

	dashboard := protected.Group("/dashboard")
	{
		dashboard.GET("/admin", adminOnly, dashboardHandler.Admin)
		dashboard.GET("/teacher", middleware.RequireRoles(models.RoleTeacher), dashboardHandler.Teacher)
		dashboard.GET("/student", middleware.RequireRoles(models.RoleStudent), dashboardHandler.Student)
		dashboard.GET("/parent", middleware.RequireRoles(models.RoleParent), dashboardHandler.Parent)
	}

	reports := protected.Group("/reports", staffOnly)
	{
		reports.GET("/attendance", reportHandler.Attendance)
		reports.GET("/fees", reportHandler.Fees)
		reports.GET("/marks", reportHandler.Marks)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
}
