package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/finsight/internal/insight"
	"github.com/ShayCichocki/finsight/pkg/models"
)

var (
	insightsTopic  string
	insightsMaxAge time.Duration
	insightsLimit  int
)

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Inspect and edit the insight store",
	Long: `Inspect and edit the insights the specialists remember.

Insights are kept per topic (stock, news, industry) and keyed by ticker
symbol or industry name. Lessons are general notes fed into planning.

Usage:
  finsight insights list [--topic stock]
  finsight insights show AAPL [--topic news] [--max-age 48h]
  finsight insights add --topic industry Semiconductors "Demand is cyclical"
  finsight insights lessons
  finsight insights lesson "Check earnings dates before summarizing"
  finsight insights summary
  finsight insights export > backup.json
  finsight insights import backup.json`,
}

var insightsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored keys per topic",
	Args:  cobra.NoArgs,
	RunE:  withStore(runInsightsList),
}

var insightsShowCmd = &cobra.Command{
	Use:   "show <key>",
	Short: "Show the insights stored under a key",
	Args:  cobra.ExactArgs(1),
	RunE:  withStore(runInsightsShow),
}

var insightsAddCmd = &cobra.Command{
	Use:   "add <key> <text>",
	Short: "Add an insight by hand",
	Args:  cobra.MinimumNArgs(2),
	RunE:  withStore(runInsightsAdd),
}

var insightsLessonsCmd = &cobra.Command{
	Use:   "lessons",
	Short: "List general lessons",
	Args:  cobra.NoArgs,
	RunE:  withStore(runInsightsLessons),
}

var insightsLessonCmd = &cobra.Command{
	Use:   "lesson <text>",
	Short: "Add a general lesson",
	Args:  cobra.MinimumNArgs(1),
	RunE:  withStore(runInsightsLesson),
}

var insightsSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize what the store holds",
	Args:  cobra.NoArgs,
	RunE:  withStore(runInsightsSummary),
}

var insightsExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write the store as JSON (stdout by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  withStore(runInsightsExport),
}

var insightsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Append insights and lessons from an exported file",
	Args:  cobra.ExactArgs(1),
	RunE:  withStore(runInsightsImport),
}

func init() {
	for _, c := range []*cobra.Command{insightsListCmd, insightsShowCmd, insightsAddCmd} {
		c.Flags().StringVarP(&insightsTopic, "topic", "t", "", "Topic: stock, news or industry")
	}
	insightsShowCmd.Flags().DurationVar(&insightsMaxAge, "max-age", 0, "Only show insights younger than this (0 shows all)")
	insightsLessonsCmd.Flags().DurationVar(&insightsMaxAge, "max-age", 0, "Only show lessons younger than this (0 shows all)")
	insightsShowCmd.Flags().IntVarP(&insightsLimit, "limit", "n", 0, "Show at most this many, newest first (0 shows all)")

	insightsCmd.AddCommand(
		insightsListCmd,
		insightsShowCmd,
		insightsAddCmd,
		insightsLessonsCmd,
		insightsLessonCmd,
		insightsSummaryCmd,
		insightsExportCmd,
		insightsImportCmd,
	)
}

// withStore opens the configured store around run.
func withStore(run func(cmd *cobra.Command, store *insight.Store, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, logger, err := openStoreOnly(cfg)
		if err != nil {
			return err
		}
		defer func() {
			_ = store.Close()
			_ = logger.Sync()
		}()
		return run(cmd, store, args)
	}
}

// topicFlag parses --topic. An empty flag means def.
func topicFlag(def models.Topic) (models.Topic, error) {
	if insightsTopic == "" {
		return def, nil
	}
	t := models.Topic(strings.ToLower(insightsTopic))
	if !t.Valid() {
		return "", fmt.Errorf("unknown topic %q (want stock, news or industry)", insightsTopic)
	}
	return t, nil
}

// normalizeKey uppercases ticker keys; industry names keep their case.
func normalizeKey(topic models.Topic, key string) string {
	key = strings.TrimSpace(key)
	if topic == models.TopicIndustry {
		return key
	}
	return strings.ToUpper(strings.TrimPrefix(key, "$"))
}

func runInsightsList(cmd *cobra.Command, store *insight.Store, _ []string) error {
	out := cmd.OutOrStdout()

	topics := models.Topics
	if insightsTopic != "" {
		t, err := topicFlag(models.TopicStock)
		if err != nil {
			return err
		}
		topics = []models.Topic{t}
	}

	for _, topic := range topics {
		keys := store.Keys(topic)
		fmt.Fprintf(out, "%s (%d)\n", color.New(color.Bold).Sprint(topic), len(keys))
		for _, k := range keys {
			fmt.Fprintf(out, "  %s\n", k)
		}
	}
	return nil
}

func runInsightsShow(cmd *cobra.Command, store *insight.Store, args []string) error {
	topic, err := topicFlag(models.TopicStock)
	if err != nil {
		return err
	}
	key := normalizeKey(topic, args[0])
	out := cmd.OutOrStdout()

	var found []models.Insight
	if insightsLimit > 0 {
		found = store.Recent(topic, key, insightsMaxAge, insightsLimit)
	} else {
		found = store.Get(topic, key, insightsMaxAge)
	}
	if len(found) == 0 {
		fmt.Fprintf(out, "No %s insights for %s.\n", topic, key)
		return nil
	}

	for _, ins := range found {
		printInsight(out, ins)
	}
	return nil
}

func printInsight(out io.Writer, ins models.Insight) {
	fmt.Fprintf(out, "%s %s %s\n",
		color.CyanString(ins.Key),
		color.HiBlackString(ins.CreatedAt.Local().Format("2006-01-02 15:04")),
		color.HiBlackString("(%s ago)", formatAge(time.Since(ins.CreatedAt))),
	)
	fmt.Fprintf(out, "%s\n\n", ins.Text)
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func runInsightsAdd(cmd *cobra.Command, store *insight.Store, args []string) error {
	topic, err := topicFlag(models.TopicStock)
	if err != nil {
		return err
	}
	key := normalizeKey(topic, args[0])
	text := strings.TrimSpace(strings.Join(args[1:], " "))
	if key == "" || text == "" {
		return fmt.Errorf("key and text are required")
	}

	ins, err := store.Put(topic, key, text, time.Time{})
	if err != nil {
		return fmt.Errorf("save insight: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Added %s insight for %s (%s)\n", color.GreenString("✓"), topic, key, ins.ID)
	return nil
}

func runInsightsLessons(cmd *cobra.Command, store *insight.Store, _ []string) error {
	out := cmd.OutOrStdout()
	lessons := store.Lessons(insightsMaxAge)
	if len(lessons) == 0 {
		fmt.Fprintln(out, "No lessons recorded.")
		return nil
	}
	for _, l := range lessons {
		fmt.Fprintf(out, "%s  %s\n", color.HiBlackString(l.CreatedAt.Local().Format("2006-01-02")), l.Text)
	}
	return nil
}

func runInsightsLesson(cmd *cobra.Command, store *insight.Store, args []string) error {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		return fmt.Errorf("lesson text is required")
	}
	if _, err := store.AddLesson(text, time.Time{}); err != nil {
		return fmt.Errorf("save lesson: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Lesson added\n", color.GreenString("✓"))
	return nil
}

func runInsightsSummary(cmd *cobra.Command, store *insight.Store, _ []string) error {
	out := cmd.OutOrStdout()
	sum := store.Summary()

	for _, topic := range models.Topics {
		fmt.Fprintf(out, "%-9s %d keys", topic, sum.Counts[topic])
		if recent := sum.RecentKeys[topic]; len(recent) > 0 {
			fmt.Fprintf(out, "  recent: %s", strings.Join(recent, ", "))
		}
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "%-9s %d\n", "lessons", sum.Lessons)
	for _, l := range sum.RecentLessons {
		fmt.Fprintf(out, "  - %s\n", l)
	}
	return nil
}

func runInsightsExport(cmd *cobra.Command, store *insight.Store, args []string) error {
	if len(args) == 0 {
		return store.Export(cmd.OutOrStdout())
	}

	f, err := os.Create(args[0])
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	if err := store.Export(f); err != nil {
		f.Close()
		return fmt.Errorf("export: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close export file: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s Exported to %s\n", color.GreenString("✓"), args[0])
	return nil
}

func runInsightsImport(cmd *cobra.Command, store *insight.Store, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()

	added, lessons, err := store.Import(f)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Imported %d insights and %d lessons\n", color.GreenString("✓"), added, lessons)
	return nil
}
