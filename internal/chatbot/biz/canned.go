package biz

import "strings"

// CannedResponse is one entry of the canned-answer table: a set of keyword
// predicates, a fully pre-written answer, and its fixed source URLs. Adding
// a new pattern is a data change here, not a code change.
type CannedResponse struct {
	// Name identifies the entry in logs and tests.
	Name string
	// Keywords is the match predicate over the lower-cased question: the
	// entry matches when ANY inner group matches, and a group matches when
	// ALL of its terms appear as substrings.
	Keywords [][]string
	// Answer is the pre-written response text.
	Answer string
	// Sources are the fixed source URLs for this answer.
	Sources []string
}

// CannedMatcher matches questions against an ordered table of canned
// responses. The first matching entry wins; table order is the only
// tie-break between entries.
type CannedMatcher struct {
	table []CannedResponse
}

// NewCannedMatcher builds the matcher with the default table, with source
// URLs rooted at docsBaseURL.
func NewCannedMatcher(docsBaseURL string) *CannedMatcher {
	return &CannedMatcher{table: defaultCannedTable(docsBaseURL)}
}

// NewCannedMatcherWithTable builds a matcher over a custom table.
func NewCannedMatcherWithTable(table []CannedResponse) *CannedMatcher {
	return &CannedMatcher{table: table}
}

// Match returns the first canned response whose predicate matches the
// question, or nil when nothing matches. A nil result is not an error; the
// caller proceeds to retrieval.
func (m *CannedMatcher) Match(question string) *CannedResponse {
	text := strings.ToLower(question)
	for i := range m.table {
		entry := &m.table[i]
		for _, group := range entry.Keywords {
			if containsAll(text, group) {
				return entry
			}
		}
	}
	return nil
}

func containsAll(text string, terms []string) bool {
	for _, term := range terms {
		if !strings.Contains(text, term) {
			return false
		}
	}
	return true
}

func defaultCannedTable(base string) []CannedResponse {
	base = strings.TrimRight(base, "/")

	return []CannedResponse{
		{
			Name: "function-not-triggering",
			Keywords: [][]string{
				{"function", "not triggering"},
				{"function", "isn't triggering"},
				{"function", "doesn't trigger"},
				{"function", "not firing"},
				{"function", "won't run"},
				{"trigger", "not working"},
			},
			Answer: `If your function isn't triggering, work through these checks in order:

1. **Verify the function is deployed.** Run the deploy command again and confirm the function appears in the dashboard's Functions list. A function that only exists locally will never receive events.

2. **Check the event name.** The event name your code sends must exactly match the event the function subscribes to, including case. A single typo means the function silently never fires.

3. **Confirm the event is actually being sent.** Open the dashboard's event stream and look for your event. If the event never arrives, the problem is on the sending side, not in the function.

4. **Look at the function's run history.** If runs appear but fail immediately, the trigger is fine and the error is inside the handler. Check the logged error on the failed run.`,
			Sources: []string{
				base + "/docs/functions/debugging",
				base + "/docs/events/sending",
			},
		},
		{
			Name: "retries-and-error-handling",
			Keywords: [][]string{
				{"retry"},
				{"retries"},
				{"error handling"},
				{"handle errors"},
				{"failed run"},
			},
			Answer: `Failed steps are retried automatically with exponential backoff. By default each step gets several attempts before the run is marked failed.

Key points:

- **Retries are per step**, not per function. A step that succeeds is never re-executed when a later step fails, which is why side effects belong inside steps.
- **Control the retry count** with the function's retry configuration. Set it to zero for operations that must never be retried.
- **Non-retriable errors** let you bail out early: throw the dedicated non-retriable error type when an error is permanent (for example a 404 from an upstream API), and the step fails immediately without burning the remaining attempts.
- **Rollbacks / failure handlers** can be attached to run when all retries are exhausted, which is the place for alerting or compensating actions.`,
			Sources: []string{
				base + "/docs/functions/retries",
				base + "/docs/reference/typescript/errors",
			},
		},
		{
			Name: "steps-and-timeouts",
			Keywords: [][]string{
				{"timeout"},
				{"timed out"},
				{"split", "step"},
				{"long running"},
				{"long-running"},
			},
			Answer: `Long-running work should be split into multiple steps rather than executed in one block. Each step runs and is retried independently, and completed steps are memoized, so a timeout in step 3 never repeats the work of steps 1 and 2.

Guidelines:

- Keep each step under the platform's per-step execution limit. If a single operation can exceed it, break it into smaller operations or paginate.
- Use sleep steps for waiting instead of blocking inside a handler. Sleeps are durable: the run suspends and resumes even across deploys.
- If you are hitting timeouts on an external API call, wrap just that call in its own step so only the call is retried, with backoff, instead of the whole function body.`,
			Sources: []string{
				base + "/docs/functions/steps",
				base + "/docs/guides/multi-step-functions",
			},
		},
		{
			Name: "rate-limiting-and-concurrency",
			Keywords: [][]string{
				{"rate limit"},
				{"rate-limit"},
				{"throttle"},
				{"throttling"},
				{"concurrency"},
				{"too many requests"},
			},
			Answer: `You can bound how fast and how wide a function runs with three separate controls:

- **Concurrency** caps how many runs of a function execute at the same time. Use it to protect a downstream resource such as a database connection pool. Runs over the cap queue rather than fail.
- **Rate limiting** caps how many runs start per time window; events over the limit are skipped entirely. Use it for idempotent, lossy workloads like cache refreshes.
- **Throttling** also caps runs per time window but enqueues the overflow instead of dropping it, so every event is eventually processed.

All three accept an optional key expression, so the limit can apply per user or per tenant instead of globally. Pick rate limiting only when losing events is acceptable; otherwise use throttling or concurrency.`,
			Sources: []string{
				base + "/docs/guides/flow-control",
				base + "/docs/reference/functions/rate-limit",
			},
		},
		{
			Name: "local-development",
			Keywords: [][]string{
				{"local dev"},
				{"locally"},
				{"dev server"},
				{"local environment"},
				{"develop", "machine"},
			},
			Answer: `For local development run the dev server alongside your app:

1. Start your application as usual.
2. Start the dev server and point it at your app's serve endpoint. It discovers your functions, receives events, and executes runs locally with full step-by-step visibility.
3. Open the dev server's UI in the browser to send test events, inspect run timelines, and replay failures.

The dev server needs no account or API keys and nothing you do locally touches production. When a function works locally, deploy it and sync your app from the production dashboard.`,
			Sources: []string{
				base + "/docs/local-development",
				base + "/docs/getting-started",
			},
		},
		{
			Name: "deployment",
			Keywords: [][]string{
				{"deploy"},
				{"deployment"},
				{"production"},
				{"vercel"},
				{"netlify"},
				{"hosting"},
			},
			Answer: `Deploying has two parts: deploying your app (which hosts the functions) and syncing the app so the platform knows where to call it.

- Deploy your app to any host that can serve HTTP: serverless platforms, containers, or your own servers. Functions run inside your app, so wherever your app runs, your functions run.
- Set the signing key and event key environment variables in your hosting provider. Without the signing key, production requests to your serve endpoint are rejected.
- Sync the app from the dashboard by providing the public URL of your serve endpoint. Most platform integrations (for example the Vercel integration) sync automatically on every deploy.
- After syncing, the dashboard's Apps page shows the discovered functions; if a function is missing, it isn't exported from the serve handler.`,
			Sources: []string{
				base + "/docs/deploy",
				base + "/docs/events/creating-an-event-key",
			},
		},
	}
}
