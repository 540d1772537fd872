package cmd

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"time"

	"github.com/f3rmion/secema/conf"
	"github.com/f3rmion/secema/ema"
	"github.com/f3rmion/secema/journal"
	"github.com/f3rmion/secema/mpc"
	"github.com/f3rmion/secema/session"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
)

var (
	emaPrices  string
	emaInput   string
	emaPeriod  int
	emaCheck   bool
	emaTimeout time.Duration
)

var emaCmd = &cobra.Command{
	Use:   "ema",
	Short: "Compute the EMA of a price series without revealing the prices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := conf.NewParams(viper.GetViper())
		if err != nil {
			return err
		}
		job, err := loadJob(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if emaTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, emaTimeout)
			defer cancel()
		}

		ms := startMetrics(params.MetricsAddr)
		defer ms.stop(context.Background())

		return runEMA(ctx, params, job, ms.runtimeMetrics(), cmd.OutOrStdout())
	},
}

func init() {
	emaCmd.Flags().StringVar(&emaPrices, "prices", "",
		"Comma separated prices, e.g. 10,12,14")
	emaCmd.Flags().StringVar(&emaInput, "input", "",
		"YAML file with a prices list and optional period")
	emaCmd.Flags().IntVar(&emaPeriod, "period", 10,
		"EMA period; the multiplier is 2/(period+1)")
	emaCmd.Flags().BoolVar(&emaCheck, "check", false,
		"Also compute the EMA in plaintext and compare")
	emaCmd.Flags().DurationVar(&emaTimeout, "timeout", 2*time.Minute,
		"Abort the computation after this long; 0 waits forever")
	rootCmd.AddCommand(emaCmd)
}

// job is one EMA computation requested on the command line.
type job struct {
	Prices []float64
	Period int
	Check  bool
}

func loadJob(cmd *cobra.Command) (job, error) {
	j := job{Period: emaPeriod, Check: emaCheck}
	switch {
	case emaInput != "" && emaPrices != "":
		return j, errors.New("use either --prices or --input, not both")
	case emaInput != "":
		s, err := readSeries(emaInput)
		if err != nil {
			return j, err
		}
		j.Prices = s.Prices
		if s.Period != nil && !cmd.Flags().Changed("period") {
			j.Period = *s.Period
		}
	default:
		prices, err := parsePrices(emaPrices)
		if err != nil {
			return j, err
		}
		j.Prices = prices
	}
	return j, nil
}

// runEMA runs one computation in a fresh session, prints the result and
// records it in the journal when one is configured.
func runEMA(ctx context.Context, params *conf.Params, j job, m *mpc.Metrics, out io.Writer) error {
	cfg, err := params.Session()
	if err != nil {
		return err
	}
	cfg.Metrics = m

	s, err := session.New(cfg)
	if err != nil {
		return err
	}
	started := time.Now()
	result, err := secureEMA(ctx, s, j)
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if cerr := s.Cleanup(cleanupCtx); cerr != nil {
		jww.WARN.Printf("session %s cleanup: %v", s.ID(), cerr)
	}
	if jerr := record(ctx, params, s.ID(), j, result, err, started); jerr != nil {
		jww.ERROR.Printf("journal: %v", jerr)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "EMA(period=%d, n=%d) = %.6f\n", j.Period, len(j.Prices), result)
	if j.Check {
		want, err := ema.Plain(j.Prices, j.Period)
		if err != nil {
			return err
		}
		diff := math.Abs(want - result)
		fmt.Fprintf(out, "plaintext check = %.6f (difference %.3g)\n", want, diff)
		if diff > 1e-4*math.Max(1, math.Abs(want)) {
			return errors.Errorf("secure result %v differs from plaintext %v", result, want)
		}
	}
	return nil
}

func secureEMA(ctx context.Context, s *session.Session, j job) (float64, error) {
	// Prices are shared before the runtime starts; nothing leaves this
	// process in plaintext.
	prices := make([]*mpc.SecretValue, len(j.Prices))
	for i, p := range j.Prices {
		v, err := s.SecureFloat(p)
		if err != nil {
			return 0, errors.Wrapf(err, "price %d", i)
		}
		prices[i] = v
	}
	if err := s.Initialize(ctx); err != nil {
		return 0, err
	}
	v, err := ema.Compute(ctx, s, prices, j.Period)
	if err != nil {
		return 0, err
	}
	result, err := s.Reveal(ctx, v)
	if err != nil {
		return 0, err
	}
	jww.DEBUG.Printf("session %s: revealed EMA %v", s.ID(), result)
	return result, nil
}

func record(ctx context.Context, params *conf.Params, id string, j job, result float64, runErr error, started time.Time) error {
	if params.JournalPath == "" {
		return nil
	}
	jr, err := journal.Open(params.JournalPath)
	if err != nil {
		return err
	}
	defer jr.Close()

	e := journal.Entry{
		SessionID: id,
		Parties:   params.Parties,
		Field:     params.Field,
		Period:    j.Period,
		Length:    len(j.Prices),
		Result:    result,
		Status:    journal.StatusOK,
		Started:   started,
		Finished:  time.Now(),
	}
	if runErr != nil {
		e.Status = journal.StatusFailed
		e.Error = runErr.Error()
		e.Result = 0
	}
	_, err = jr.Record(context.WithoutCancel(ctx), e)
	return err
}
