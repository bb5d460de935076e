package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/postpilot-io/postpilot/internal/config"
	"github.com/postpilot-io/postpilot/internal/store"
	"github.com/postpilot-io/postpilot/pkg/types"
)

var rootCmd = &cobra.Command{
	Use:   "postpilot",
	Short: "PostPilot schedules and publishes social media posts",
	Long: `PostPilot is a social media autopilot with a Redis-backed store.
Posts are scheduled for a future time and published automatically with retries.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}

func init() {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	redisOpts := store.RedisOptions{
		URL:            cfg.Redis.URL,
		Password:       cfg.Redis.Password,
		DB:             cfg.Redis.DB,
		ConnectTimeout: cfg.Redis.Timeout,
		CommandTimeout: cfg.Redis.Timeout,
		MaxRetries:     cfg.Scheduler.MaxRetries,
	}

	setupCommands(redisOpts, logger)
}

func setupCommands(redisOpts store.RedisOptions, logger *zap.Logger) {
	// Schedule post command
	var pageID, message, link, at, platform string
	var scheduleCmd = &cobra.Command{
		Use:   "schedule",
		Short: "Schedule a post for publishing",
		Run: func(cmd *cobra.Command, args []string) {
			schedulePost(redisOpts, logger, platform, pageID, message, link, at)
		},
	}
	scheduleCmd.Flags().StringVarP(&pageID, "page", "p", "", "Target page ID (required)")
	scheduleCmd.Flags().StringVarP(&message, "message", "m", "", "Post message (required)")
	scheduleCmd.Flags().StringVarP(&link, "link", "l", "", "Optional link to attach")
	scheduleCmd.Flags().StringVarP(&at, "at", "a", "", "Publish time, RFC3339 (defaults to now)")
	scheduleCmd.Flags().StringVar(&platform, "platform", "facebook", "Target platform")
	scheduleCmd.MarkFlagRequired("page")
	scheduleCmd.MarkFlagRequired("message")

	// List posts command
	var status string
	var limit int
	var listCmd = &cobra.Command{
		Use:   "list",
		Short: "List scheduled posts",
		Run: func(cmd *cobra.Command, args []string) {
			listPosts(redisOpts, logger, status, limit)
		},
	}
	listCmd.Flags().StringVarP(&status, "status", "s", "", "Filter by status (pending, processing, published, failed)")
	listCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of posts to show")

	// Post status command
	var postID string
	var statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the status of a post",
		Run: func(cmd *cobra.Command, args []string) {
			showPost(redisOpts, logger, postID)
		},
	}
	statusCmd.Flags().StringVarP(&postID, "id", "i", "", "Post ID (required)")
	statusCmd.MarkFlagRequired("id")

	// Requeue failed post command
	var requeueID string
	var requeueCmd = &cobra.Command{
		Use:   "requeue",
		Short: "Requeue a failed or stuck post for another publish attempt",
		Run: func(cmd *cobra.Command, args []string) {
			requeuePost(redisOpts, logger, requeueID)
		},
	}
	requeueCmd.Flags().StringVarP(&requeueID, "id", "i", "", "Post ID to requeue (required)")
	requeueCmd.MarkFlagRequired("id")

	// Stats command
	var statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show store statistics",
		Run: func(cmd *cobra.Command, args []string) {
			printStats(redisOpts, logger)
		},
	}

	// Health check command
	var healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Check system health",
		Run: func(cmd *cobra.Command, args []string) {
			checkHealth(redisOpts, logger)
		},
	}

	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(requeueCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(healthCmd)
}

func openStore(redisOpts store.RedisOptions, logger *zap.Logger) *store.RedisStore {
	st, err := store.NewRedisStore(redisOpts)
	if err != nil {
		logger.Error("Failed to connect to Redis", zap.Error(err))
		return nil
	}
	return st
}

func schedulePost(redisOpts store.RedisOptions, logger *zap.Logger, platform, pageID, message, link, at string) {
	st := openStore(redisOpts, logger)
	if st == nil {
		return
	}
	defer st.Close()

	scheduledFor := time.Now().UTC()
	if at != "" {
		parsed, err := time.Parse(time.RFC3339, at)
		if err != nil {
			logger.Error("Invalid --at time, expected RFC3339", zap.Error(err))
			return
		}
		scheduledFor = parsed.UTC()
	}

	post := types.NewScheduledPost(platform, pageID, message, scheduledFor)
	post.LinkURL = link

	if err := post.Validate(); err != nil {
		logger.Error("Invalid post", zap.Error(err))
		return
	}

	ctx := context.Background()
	if err := st.Create(ctx, post); err != nil {
		logger.Error("Failed to schedule post", zap.Error(err))
		return
	}

	fmt.Printf("Post scheduled successfully:\n")
	fmt.Printf("  ID: %s\n", post.ID)
	fmt.Printf("  Platform: %s\n", post.Platform)
	fmt.Printf("  Page: %s\n", post.PageID)
	fmt.Printf("  Publish at: %s\n", post.ScheduledFor.Format(time.RFC3339))
}

func listPosts(redisOpts store.RedisOptions, logger *zap.Logger, status string, limit int) {
	st := openStore(redisOpts, logger)
	if st == nil {
		return
	}
	defer st.Close()

	posts, err := st.List(context.Background(), types.PostStatus(status), limit)
	if err != nil {
		logger.Error("Failed to list posts", zap.Error(err))
		return
	}

	if len(posts) == 0 {
		fmt.Println("No posts found")
		return
	}

	fmt.Printf("%-30s %-12s %-10s %-20s %s\n", "ID", "STATUS", "RETRIES", "SCHEDULED FOR", "MESSAGE")
	for _, post := range posts {
		msg := post.Message
		if len(msg) > 40 {
			msg = msg[:37] + "..."
		}
		fmt.Printf("%-30s %-12s %-10d %-20s %s\n",
			post.ID, post.Status, post.Retry.RetryCount,
			post.ScheduledFor.Format("2006-01-02 15:04:05"), msg)
	}
}

func showPost(redisOpts store.RedisOptions, logger *zap.Logger, postID string) {
	st := openStore(redisOpts, logger)
	if st == nil {
		return
	}
	defer st.Close()

	post, err := st.Get(context.Background(), postID)
	if err != nil {
		logger.Error("Failed to get post", zap.Error(err))
		return
	}

	fmt.Printf("Post %s:\n", post.ID)
	fmt.Printf("  Platform: %s\n", post.Platform)
	fmt.Printf("  Page: %s\n", post.PageID)
	fmt.Printf("  Status: %s\n", post.Status)
	fmt.Printf("  Scheduled for: %s\n", post.ScheduledFor.Format(time.RFC3339))
	fmt.Printf("  Retry count: %d\n", post.Retry.RetryCount)
	if post.Retry.LastError != "" {
		fmt.Printf("  Last error: %s\n", post.Retry.LastError)
	}
	if post.ErrorMessage != "" {
		fmt.Printf("  Final error: %s\n", post.ErrorMessage)
	}
	if post.PublishedPostID != "" {
		fmt.Printf("  Published post ID: %s\n", post.PublishedPostID)
	}
	if post.PublishedAt != nil {
		fmt.Printf("  Published at: %s\n", post.PublishedAt.Format(time.RFC3339))
	}
}

func requeuePost(redisOpts store.RedisOptions, logger *zap.Logger, postID string) {
	st := openStore(redisOpts, logger)
	if st == nil {
		return
	}
	defer st.Close()

	if err := st.Requeue(context.Background(), postID); err != nil {
		logger.Error("Failed to requeue post", zap.Error(err))
		return
	}

	fmt.Printf("Post %s requeued for publishing\n", postID)
}

func printStats(redisOpts store.RedisOptions, logger *zap.Logger) {
	st := openStore(redisOpts, logger)
	if st == nil {
		return
	}
	defer st.Close()

	stats, err := st.GetStats(context.Background(), time.Now().UTC())
	if err != nil {
		logger.Error("Failed to get stats", zap.Error(err))
		return
	}

	fmt.Printf("Store Statistics:\n")
	fmt.Printf("----------------\n")
	fmt.Printf("Due backlog: %d\n", stats.DueBacklog)
	fmt.Printf("Total scheduled: %d\n", stats.TotalScheduled)
	fmt.Printf("Total published: %d\n", stats.TotalPublished)
	fmt.Printf("Total failed: %d\n", stats.TotalFailed)
	fmt.Printf("Total requeued: %d\n", stats.TotalRequeued)
}

func checkHealth(redisOpts store.RedisOptions, logger *zap.Logger) {
	st, err := store.NewRedisStore(redisOpts)
	if err != nil {
		logger.Error("Failed to connect to Redis", zap.Error(err))
		fmt.Println("❌ System health check failed: Redis connection error")
		return
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := st.Health(ctx); err != nil {
		logger.Error("Redis health check failed", zap.Error(err))
		fmt.Println("❌ System health check failed: Redis unhealthy")
		return
	}

	fmt.Println("✅ System health check passed")
	fmt.Println("  Redis: Connected and healthy")
}
