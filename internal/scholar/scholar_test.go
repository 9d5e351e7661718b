package scholar

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/httputil"
	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/web"
)

func init() {
	httputil.RetryBaseDelay = time.Millisecond
}

type row struct {
	id        string
	title     string
	year      int
	citations string
}

func listingHTML(rows []row) string {
	html := `<html><body><table id="gsc_a_t"><tbody id="gsc_a_b">`
	for _, r := range rows {
		year := ""
		if r.year > 0 {
			year = strconv.Itoa(r.year)
		}
		html += fmt.Sprintf(`<tr class="gsc_a_tr">
<td class="gsc_a_t"><a href="/citations?view_op=view_citation&amp;citation_for_view=%s" class="gsc_a_at">%s</a>
<div class="gs_gray">J Doe, A Smith, ...</div><div class="gs_gray">Proceedings of ACL, 2024</div></td>
<td class="gsc_a_c"><a href="#" class="gsc_a_ac gs_ibl">%s</a></td>
<td class="gsc_a_y"><span class="gsc_a_h gsc_a_hc gs_ibl">%s</span></td></tr>`, r.id, r.title, r.citations, year)
	}
	return html + `</tbody></table></body></html>`
}

func detailHTML(pdf string) string {
	link := ""
	if pdf != "" {
		link = fmt.Sprintf(`<div id="gsc_oci_title_gg"><div class="gsc_oci_title_ggi"><a href="%s"><span class="gsc_oci_title_ggt">[PDF]</span> example.edu</a></div></div>`, pdf)
	}
	return `<html><body>` + link + `
<div class="gs_scl"><div class="gsc_oci_field">Description</div><div class="gsc_oci_value"><div id="gsc_oci_descr">We study sparse attention.</div></div></div>
<div class="gs_scl"><div class="gsc_oci_field">Total citations</div><div class="gsc_oci_value"><div><a href="/scholar?cites=1">Cited by 512</a></div></div></div>
</body></html>`
}

func newTestHarvester(t *testing.T, handler http.Handler, cfg Config) (*Harvester, *Pacer) {
	t.Helper()

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	old := BaseURL
	BaseURL = ts.URL
	t.Cleanup(func() { BaseURL = old })

	pacer := NewPacer(0)
	pacer.wait = func(context.Context, time.Duration) error { return nil }
	h := NewHarvester(ts.Client(), pacer, cfg, zap.NewNop())
	h.now = func() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) }
	return h, pacer
}

func TestHarvestParsesAndEnrichesRecentAndReputationPapers(t *testing.T) {
	var details sync.Map
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("view_op") == "view_citation" {
			id := r.URL.Query().Get("citation_for_view")
			details.Store(id, true)
			pdf := ""
			if id != "c" {
				pdf = "https://example.edu/" + id + ".pdf"
			}
			w.Write([]byte(detailHTML(pdf)))
			return
		}
		assert.Equal(t, "pubdate", r.URL.Query().Get("sortby"))
		assert.Equal(t, "u123", r.URL.Query().Get("user"))
		w.Write([]byte(listingHTML([]row{
			{id: "a", title: "Recent Work", year: 2025, citations: "3"},
			{id: "b", title: "Classic Work", year: 2015, citations: "512"},
			{id: "c", title: "Recent Without PDF", year: 2024, citations: ""},
			{id: "d", title: "Old Obscure Work", year: 2012, citations: ""},
		})))
	})

	h, pacer := newTestHarvester(t, handler, Config{})
	papers, err := h.Harvest(context.Background(), "https://scholar.google.com/citations?user=u123&hl=en")
	require.NoError(t, err)
	require.Len(t, papers, 4)

	assert.Equal(t, []string{"Recent Work", "Recent Without PDF", "Classic Work", "Old Obscure Work"},
		[]string{papers[0].Title, papers[1].Title, papers[2].Title, papers[3].Title})

	recent := papers[0]
	assert.Equal(t, []string{"J Doe", "A Smith"}, recent.Authors)
	assert.Equal(t, "Proceedings of ACL, 2024", recent.Venue)
	assert.Equal(t, "https://example.edu/a.pdf", recent.PDFURL)
	assert.Equal(t, "We study sparse attention.", recent.Abstract)
	require.NotNil(t, recent.CitationCount)
	assert.Equal(t, 512, *recent.CitationCount, "detail page count wins")

	assert.False(t, papers[1].HasPDF())
	assert.Equal(t, "https://example.edu/b.pdf", papers[2].PDFURL)
	assert.False(t, papers[3].HasPDF())
	assert.Equal(t, 0, papers[3].Citations())

	_, fetchedOld := details.Load("d")
	assert.False(t, fetchedOld, "old uncited papers are not enriched")
	assert.Equal(t, 4, pacer.Requests(), "listing plus three detail pages")
}

func TestHarvestPaginates(t *testing.T) {
	old := pageSizeLimit
	pageSizeLimit = 2
	defer func() { pageSizeLimit = old }()

	var starts []string
	var mu sync.Mutex
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("view_op") != "" {
			w.Write([]byte(detailHTML("")))
			return
		}
		mu.Lock()
		starts = append(starts, r.URL.Query().Get("cstart"))
		mu.Unlock()
		switch r.URL.Query().Get("cstart") {
		case "0":
			w.Write([]byte(listingHTML([]row{{id: "1", title: "P1", year: 2020}, {id: "2", title: "P2", year: 2019}})))
		case "2":
			w.Write([]byte(listingHTML([]row{{id: "3", title: "P3", year: 2018}})))
		default:
			t.Errorf("unexpected cstart %s", r.URL.Query().Get("cstart"))
		}
	})

	h, _ := newTestHarvester(t, handler, Config{MaxPapers: 10})
	papers, err := h.Harvest(context.Background(), "https://scholar.google.com/citations?user=u1")
	require.NoError(t, err)
	assert.Len(t, papers, 3)
	assert.Equal(t, []string{"0", "2"}, starts)
}

func TestHarvestBlocked(t *testing.T) {
	t.Run("captcha", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`<html><div id="gs_captcha_ccl">Please show you're not a robot</div></html>`))
		})
		h, _ := newTestHarvester(t, handler, Config{})
		_, err := h.Harvest(context.Background(), "https://scholar.google.com/citations?user=u1")
		assert.ErrorIs(t, err, ErrBlocked)
	})

	t.Run("rate limited", func(t *testing.T) {
		var calls int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusTooManyRequests)
		})
		h, _ := newTestHarvester(t, handler, Config{MaxAttempts: 3})
		_, err := h.Harvest(context.Background(), "https://scholar.google.com/citations?user=u1")
		assert.ErrorIs(t, err, ErrBlocked)

		var fetchErr *web.FetchError
		require.ErrorAs(t, err, &fetchErr)
		assert.Contains(t, fetchErr.URL, "user=u1")
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})
}

func TestHarvestRejectsNonProfileURL(t *testing.T) {
	h := NewHarvester(nil, nil, Config{}, nil)
	_, err := h.Harvest(context.Background(), "https://example.edu/~doe")
	assert.ErrorIs(t, err, ErrInvalidProfile)
}

func TestPacerEnforcesMinimumInterval(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var waits []time.Duration

	p := NewPacer(2 * time.Second)
	p.now = func() time.Time { return clock }
	p.wait = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		clock = clock.Add(d)
		return nil
	}

	ctx := context.Background()
	require.NoError(t, p.Wait(ctx))

	clock = clock.Add(500 * time.Millisecond)
	require.NoError(t, p.Wait(ctx))

	clock = clock.Add(5 * time.Second)
	require.NoError(t, p.Wait(ctx))

	assert.Equal(t, []time.Duration{1500 * time.Millisecond}, waits)
	assert.Equal(t, 3, p.Requests())
}

func TestPacerSerializesConcurrentCallers(t *testing.T) {
	const interval = 20 * time.Millisecond
	p := NewPacer(interval)
	p.interval = interval

	var mu sync.Mutex
	var released []time.Time
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, p.Wait(context.Background()))
			mu.Lock()
			released = append(released, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(released, func(i, j int) bool { return released[i].Before(released[j]) })
	total := released[len(released)-1].Sub(released[0])
	assert.GreaterOrEqual(t, total, 4*interval-5*time.Millisecond)
}

func TestPacerFloorsInterval(t *testing.T) {
	for _, interval := range []time.Duration{-time.Second, 0, time.Millisecond} {
		clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		var waits []time.Duration

		p := NewPacer(interval)
		p.now = func() time.Time { return clock }
		p.wait = func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			clock = clock.Add(d)
			return nil
		}

		for i := 0; i < 5; i++ {
			require.NoError(t, p.Wait(context.Background()))
		}
		assert.Equal(t, []time.Duration{MinIntervalFloor, MinIntervalFloor, MinIntervalFloor, MinIntervalFloor}, waits, "interval %s", interval)
	}
}

func TestPacerHonoursCancellation(t *testing.T) {
	p := NewPacer(time.Hour)
	require.NoError(t, p.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Wait(ctx), context.DeadlineExceeded)
}
