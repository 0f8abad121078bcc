// -----------------------------------------------------------------------
// DOM Script - read-only element queries shared by the browser drivers
// -----------------------------------------------------------------------

package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/ternarybob/siteprobe/internal/interfaces"
	"github.com/ternarybob/siteprobe/internal/models"
)

// scriptEvaluator runs an expression that yields a JSON string
type scriptEvaluator interface {
	evalString(ctx context.Context, expression string) (string, error)
}

// domHelpers is prepended to every query. Elements are addressed by absolute
// XPath so lookups never need to tag the document.
const domHelpers = `
function __xp(el) {
  if (el === document.documentElement) return "/html[1]";
  var parts = [];
  for (var n = el; n && n.nodeType === 1; n = n.parentNode) {
    var i = 1;
    for (var s = n.previousElementSibling; s; s = s.previousElementSibling) {
      if (s.nodeName === n.nodeName) i++;
    }
    parts.unshift(n.nodeName.toLowerCase() + "[" + i + "]");
  }
  return "/" + parts.join("/");
}
function __byXP(p) {
  try {
    return document.evaluate(p, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
  } catch (e) { return null; }
}
var __skip = {SCRIPT: 1, STYLE: 1, NOSCRIPT: 1, TEMPLATE: 1, HEAD: 1, TITLE: 1, META: 1, LINK: 1};
function __text(el) {
  var out = "";
  for (var c = el.firstChild; c; c = c.nextSibling) {
    if (c.nodeType === 3) out += c.nodeValue;
    else if (c.nodeType === 1 && !__skip[c.tagName]) out += __text(c);
  }
  return out;
}
`

// queryScript resolves a primitive query. Text queries match rendered text
// only and keep the deepest matching elements.
const queryScript = `
var root = document;
if (a.scope) {
  root = __byXP(a.scope);
  if (!root) return {detached: true};
}
var out = [];
if (a.kind === "css") {
  var list = root.querySelectorAll(a.selector);
  for (var i = 0; i < list.length; i++) out.push({ref: __xp(list[i]), tag: list[i].tagName.toLowerCase()});
  return {elements: out};
}
var re = new RegExp(a.pattern, a.flags);
var base = root === document ? document.body : root;
if (!base) return {elements: out};
function m(el) { return !__skip[el.tagName] && re.test(__text(el)); }
var all = [base].concat(Array.prototype.slice.call(base.querySelectorAll("*")));
for (var j = 0; j < all.length; j++) {
  var el = all[j];
  if (!m(el)) continue;
  var deeper = false;
  for (var c = el.firstElementChild; c; c = c.nextElementSibling) {
    if (m(c)) { deeper = true; break; }
  }
  if (!deeper) out.push({ref: __xp(el), tag: el.tagName.toLowerCase()});
}
return {elements: out};
`

const visibleScript = `
var el = __byXP(a.ref);
if (!el) return {detached: true};
var style = window.getComputedStyle(el);
var rect = el.getBoundingClientRect();
return {value: style.visibility !== "hidden" && style.display !== "none" && rect.width > 0 && rect.height > 0};
`

const attributeScript = `
var el = __byXP(a.ref);
if (!el) return {detached: true};
return {present: el.hasAttribute(a.name), text: el.getAttribute(a.name) || ""};
`

const textScript = `
var el = __byXP(a.ref);
if (!el) return {detached: true};
return {text: __text(el)};
`

// readyStateScript reports document readiness and the resource entry count,
// used to detect a quiet network without driver-specific events
const readyStateScript = `(function(){
  return JSON.stringify({state: document.readyState, resources: performance.getEntriesByType("resource").length});
})()`

type scriptReply struct {
	Detached bool                 `json:"detached"`
	Elements []interfaces.Element `json:"elements"`
	Value    bool                 `json:"value"`
	Present  bool                 `json:"present"`
	Text     string               `json:"text"`
}

// buildScript wraps body into a self-invoking expression that returns a JSON string
func buildScript(body string, args map[string]interface{}) (string, error) {
	encoded, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("failed to encode script arguments: %w", err)
	}
	return fmt.Sprintf("(function(a){%s\nreturn JSON.stringify((function(){%s})());})(%s)", domHelpers, body, encoded), nil
}

// domQueries implements the element half of interfaces.Page on top of a script evaluator
type domQueries struct {
	eval scriptEvaluator
}

func (d domQueries) run(ctx context.Context, body string, args map[string]interface{}) (*scriptReply, error) {
	script, err := buildScript(body, args)
	if err != nil {
		return nil, err
	}
	raw, err := d.eval.evalString(ctx, script)
	if err != nil {
		return nil, err
	}
	var reply scriptReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return nil, fmt.Errorf("failed to decode script reply: %w", err)
	}
	if reply.Detached {
		return nil, interfaces.ErrElementDetached
	}
	return &reply, nil
}

func (d domQueries) QueryAll(ctx context.Context, q interfaces.Query, scope *interfaces.Element) ([]interfaces.Element, error) {
	args := map[string]interface{}{"kind": string(q.Kind)}
	switch q.Kind {
	case interfaces.QueryCSS:
		args["selector"] = q.Selector
	case interfaces.QueryText:
		args["pattern"] = q.Pattern
		flags := "i"
		if q.CaseSensitive {
			flags = ""
		}
		args["flags"] = flags
	default:
		return nil, fmt.Errorf("unknown query kind %q", q.Kind)
	}
	if scope != nil {
		args["scope"] = scope.Ref
	}

	reply, err := d.run(ctx, queryScript, args)
	if err != nil {
		return nil, err
	}
	return reply.Elements, nil
}

func (d domQueries) IsVisible(ctx context.Context, el interfaces.Element) (bool, error) {
	reply, err := d.run(ctx, visibleScript, map[string]interface{}{"ref": el.Ref})
	if err != nil {
		return false, err
	}
	return reply.Value, nil
}

func (d domQueries) Attribute(ctx context.Context, el interfaces.Element, name string) (string, bool, error) {
	reply, err := d.run(ctx, attributeScript, map[string]interface{}{"ref": el.Ref, "name": name})
	if err != nil {
		return "", false, err
	}
	return reply.Text, reply.Present, nil
}

func (d domQueries) TextContent(ctx context.Context, el interfaces.Element) (string, error) {
	reply, err := d.run(ctx, textScript, map[string]interface{}{"ref": el.Ref})
	if err != nil {
		return "", err
	}
	return reply.Text, nil
}

// evaluateJSON runs a caller expression and decodes its value into out
func evaluateJSON(ctx context.Context, eval scriptEvaluator, expression string, out interface{}) error {
	raw, err := eval.evalString(ctx, fmt.Sprintf("JSON.stringify((%s))", expression))
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("failed to decode evaluation result: %w", err)
	}
	return nil
}

// waitForReadyState polls document readiness until state is reached or timeout.
// networkidle means load completed and no new resource entries for quietPeriod.
func waitForReadyState(ctx context.Context, eval scriptEvaluator, state models.LoadState, timeout time.Duration) error {
	const (
		pollInterval = 100 * time.Millisecond
		quietPeriod  = 500 * time.Millisecond
	)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	lastResources := -1
	quietSince := time.Time{}
	for {
		raw, err := eval.evalString(ctx, readyStateScript)
		if err == nil {
			var rs struct {
				State     string `json:"state"`
				Resources int    `json:"resources"`
			}
			if json.Unmarshal([]byte(raw), &rs) == nil {
				switch state {
				case models.LoadStateDOMContentLoaded:
					if rs.State == "interactive" || rs.State == "complete" {
						return nil
					}
				case models.LoadStateLoad:
					if rs.State == "complete" {
						return nil
					}
				case models.LoadStateNetworkIdle:
					if rs.State == "complete" {
						if rs.Resources != lastResources {
							lastResources = rs.Resources
							quietSince = time.Now()
						} else if time.Since(quietSince) >= quietPeriod {
							return nil
						}
					}
				default:
					return fmt.Errorf("unknown load state %q", state)
				}
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("load state %s not reached within %s: %w", state, timeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

// headerMap flattens driver header values into strings
func headerMap(src map[string]interface{}) map[string]string {
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[strings.ToLower(k)] = fmt.Sprint(v)
	}
	return out
}
