package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveWrite("write", nil, time.Millisecond)
	m.ObserveWrite("write", errors.New("x"), time.Millisecond)
	m.ItemsPersisted(2, 1)
	m.EventFired(1)
	m.EventFired(0)
	m.TriggerFired("/type/page", nil)
	m.TriggerFired("/type/page", errors.New("boom"))
	m.SiteOpened()
	m.SiteOpened()
	m.SiteClosed()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.WritesTotal.WithLabelValues("write", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WritesTotal.WithLabelValues("write", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ItemsSaved.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ItemsSaved.WithLabelValues("updated")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsFired))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ListenerFailures))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TriggerFirings.WithLabelValues("/type/page")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TriggerFailures.WithLabelValues("/type/page")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SitesOpen))
	assert.Equal(t, 1, testutil.CollectAndCount(m.WriteDuration))
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	m.ObserveWrite("write", nil, 0)
	m.ItemsPersisted(1, 1)
	m.EventFired(1)
	m.TriggerFired("/type/page", nil)
	m.SiteOpened()
	m.SiteClosed()
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
