package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logitdash/app"
	"logitdash/internal/errors"
)

func writeDVD(t *testing.T) string {
	t.Helper()
	src := rand.New(rand.NewSource(11))
	var b strings.Builder
	b.WriteString("buy,coupon,purchase,training\n")
	for i := 0; i < 300; i++ {
		coupon := src.Intn(3)
		purchase := src.Intn(10)
		training := []string{"no", "yes"}[src.Intn(2)]
		eta := -1.5 + 0.8*float64(coupon) + 0.1*float64(purchase)
		buy := "no"
		if src.Float64() < 1/(1+math.Exp(-eta)) {
			buy = "yes"
		}
		fmt.Fprintf(&b, "%s,%d,%d,%s\n", buy, coupon, purchase, training)
	}
	path := filepath.Join(t.TempDir(), "dvd.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSnippetCmd(t *testing.T) {
	data := writeDVD(t)

	out, err := run(t, "snippet", "--data", data, "--response", "buy", "--explanatory", "coupon,purchase")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("# reproduce this fit from a shell\nlogitdash-cli fit --data %s --response buy --explanatory coupon,purchase\n", data), out)

	out, err = run(t, "snippet", "--data", data, "--response", "buy", "--explanatory", "coupon", "--explanatory", "purchase", "--lang", "python")
	require.NoError(t, err)
	assert.Equal(t, "import pyrsm as rsm\nlr = rsm.logistic_regression(dataset=dvd, rvar=\"buy\", evars=[\"coupon\", \"purchase\"])\nlr.regress()\n", out)

	_, err = run(t, "snippet", "--data", data, "--response", "buy", "--explanatory", "coupon", "--lang", "cobol")
	assert.Equal(t, errors.CodeCodeGeneration, errors.GetCode(err))
}

func TestFitCmd_Text(t *testing.T) {
	out, err := run(t, "fit", "--data", writeDVD(t), "--response", "buy", "--explanatory", "coupon,purchase,training", "--importance")
	require.NoError(t, err)

	assert.Contains(t, out, "Response variable: buy")
	assert.Contains(t, out, "Level: yes")
	assert.Contains(t, out, "training[T.yes]")
	assert.Contains(t, out, "Pseudo R-squared (McFadden):")
	assert.Contains(t, out, "Nr obs: 300")
	assert.Contains(t, out, "Permutation importance (decrease in AUC):")
}

func TestFitCmd_JSONAndPlots(t *testing.T) {
	dir := t.TempDir()
	orPlot := filepath.Join(dir, "or.png")
	piPlot := filepath.Join(dir, "pi.png")

	out, err := run(t, "fit", "--data", writeDVD(t), "--response", "buy", "--explanatory", "coupon,purchase",
		"--format", "json", "--plot", orPlot, "--importance-plot", piPlot)
	require.NoError(t, err)

	var result struct {
		Formula    string `json:"formula"`
		OddsRatios []struct {
			Term string `json:"term"`
		} `json:"odds_ratios"`
		Fit struct {
			NObs int `json:"nobs"`
		} `json:"fit"`
		Importance []struct {
			Variable string `json:"variable"`
		} `json:"importance"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "buy ~ coupon + purchase", result.Formula)
	require.Len(t, result.OddsRatios, 2)
	assert.Equal(t, 300, result.Fit.NObs)
	assert.Len(t, result.Importance, 2)

	for _, path := range []string{orPlot, piPlot} {
		img, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(img, []byte("\x89PNG")), path)
	}
}

func TestFitCmd_Markdown(t *testing.T) {
	out, err := run(t, "fit", "--data", writeDVD(t), "--response", "buy", "--explanatory", "coupon", "--format", "markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "# Logistic regression: buy ~ coupon")
	assert.Contains(t, out, "## Model fit")
}

func TestFitCmd_Errors(t *testing.T) {
	data := writeDVD(t)

	tests := []struct {
		name string
		args []string
		code string
		msg  string
	}{
		{"no response", []string{"--explanatory", "coupon"}, errors.CodeSelectionError, app.MsgSelectResponse},
		{"no explanatory", []string{"--response", "buy"}, errors.CodeSelectionError, app.MsgSelectExplanatory},
		{"response as term", []string{"--response", "buy", "--explanatory", "buy"}, errors.CodeSelectionError, ""},
		{"not binary", []string{"--response", "purchase", "--explanatory", "coupon"}, errors.CodeModelFitError, ""},
		{"bad format", []string{"--response", "buy", "--explanatory", "coupon", "--format", "yaml"}, errors.CodeInvalidInput, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"fit", "--data", data}, tt.args...)
			_, err := run(t, args...)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetCode(err))
			if tt.msg != "" {
				assert.Equal(t, tt.msg, errors.UserMessage(err))
			}
		})
	}

	_, err := run(t, "fit", "--data", filepath.Join(t.TempDir(), "missing.csv"), "--response", "buy", "--explanatory", "coupon")
	assert.Equal(t, errors.CodeDataLoadError, errors.GetCode(err))
}

func TestColumnsAndConvert(t *testing.T) {
	data := writeDVD(t)
	out, err := run(t, "columns", "--data", data)
	require.NoError(t, err)
	assert.Contains(t, out, "dvd: 300 rows")
	assert.Contains(t, out, "training")
	assert.Contains(t, out, "categorical")

	frame := filepath.Join(t.TempDir(), "dvd.cbor.zst")
	out, err = run(t, "convert", data, frame)
	require.NoError(t, err)
	assert.Contains(t, out, "(300 rows, 4 columns)")

	out, err = run(t, "columns", "--data", frame, "--json")
	require.NoError(t, err)
	var summaries []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &summaries))
	require.Len(t, summaries, 4)
	assert.Equal(t, "buy", summaries[0]["name"])

	_, err = run(t, "convert", data, filepath.Join(t.TempDir(), "out.csv"))
	assert.Error(t, err)
}

func TestJournalCmd_RequiresURL(t *testing.T) {
	_, err := run(t, "journal", "--database-url", "")
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}
