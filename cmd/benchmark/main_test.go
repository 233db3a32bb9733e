package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/fraudscore/internal/domain"
)

func TestReadLabeledCSV(t *testing.T) {
	t.Run("ParsesRows", func(t *testing.T) {
		data := "Amount,hour,day_of_week,month,distance_from_home,is_fraud\n" +
			"150000,3,6,1,200,1\n" +
			"50,14,2,5,2.5,0\n" +
			"10,9,1,7,0,true\n"

		txs, err := readLabeledCSV(strings.NewReader(data), 0)
		require.NoError(t, err)
		require.Len(t, txs, 3)

		assert.Equal(t, domain.TransactionInput{Amount: 150000, Hour: 3, DayOfWeek: 6, Month: 1, DistanceFromHome: 200}, txs[0].Input)
		assert.True(t, txs[0].IsFraud)
		assert.Equal(t, 2, txs[0].Line)
		assert.False(t, txs[1].IsFraud)
		assert.Equal(t, 2.5, txs[1].Input.DistanceFromHome)
		assert.True(t, txs[2].IsFraud)
	})

	t.Run("Limit", func(t *testing.T) {
		data := "amount,hour,day_of_week,month,distance_from_home,is_fraud\n1,1,1,1,1,0\n2,2,2,2,2,0\n"
		txs, err := readLabeledCSV(strings.NewReader(data), 1)
		require.NoError(t, err)
		assert.Len(t, txs, 1)
	})

	t.Run("MissingColumn", func(t *testing.T) {
		_, err := readLabeledCSV(strings.NewReader("amount,hour\n1,2\n"), 0)
		assert.ErrorContains(t, err, "day_of_week")
	})

	t.Run("BadValue", func(t *testing.T) {
		data := "amount,hour,day_of_week,month,distance_from_home,is_fraud\n1,noon,1,1,1,maybe\n"
		_, err := readLabeledCSV(strings.NewReader(data), 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "line 2")
		assert.Contains(t, err.Error(), "hour")
		assert.Contains(t, err.Error(), "is_fraud")
	})
}

func TestRunBenchmark(t *testing.T) {
	// Flags anything above 1000 as fraud.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var txn domain.TransactionInput
		if err := json.NewDecoder(r.Body).Decode(&txn); err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		if txn.Amount < 0 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		resp := domain.ScoredDecision{FraudProbability: 0.1, Decision: domain.DecisionLegitimate}
		if txn.Amount > 1000 {
			resp = domain.ScoredDecision{FraudProbability: 0.9, Decision: domain.DecisionFraud}
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	txs := []LabeledTransaction{
		{Input: domain.TransactionInput{Amount: 5000}, IsFraud: true},  // TP
		{Input: domain.TransactionInput{Amount: 5000}, IsFraud: false}, // FP
		{Input: domain.TransactionInput{Amount: 10}, IsFraud: false},   // TN
		{Input: domain.TransactionInput{Amount: 10}, IsFraud: false},   // TN
		{Input: domain.TransactionInput{Amount: 10}, IsFraud: true},    // FN
		{Input: domain.TransactionInput{Amount: -1}, IsFraud: true},    // error
	}

	m := runBenchmark(txs, srv.URL, 3, false)

	assert.Equal(t, int64(6), m.TotalProcessed)
	assert.Equal(t, int64(1), m.TotalErrors)
	assert.Equal(t, int64(1), m.TruePositives)
	assert.Equal(t, int64(1), m.FalsePositives)
	assert.Equal(t, int64(2), m.TrueNegatives)
	assert.Equal(t, int64(1), m.FalseNegatives)
	assert.Equal(t, int64(2), m.TotalFraud)
	assert.Equal(t, int64(3), m.TotalNonFraud)

	assert.InDelta(t, 0.5, m.Precision(), 1e-9)
	assert.InDelta(t, 0.5, m.Recall(), 1e-9)
	assert.InDelta(t, 0.5, m.F1(), 1e-9)
	assert.InDelta(t, 0.6, m.Accuracy(), 1e-9)
}

func TestMetricsEmpty(t *testing.T) {
	var m Metrics
	assert.Zero(t, m.Precision())
	assert.Zero(t, m.Recall())
	assert.Zero(t, m.F1())
	assert.Zero(t, m.Accuracy())
}
