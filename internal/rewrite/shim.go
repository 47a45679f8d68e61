package rewrite

import "strings"

// shimTemplate is the client-side compatibility shim. It patches the page's
// dynamic network entry points (fetch, XMLHttpRequest, WebSocket, location
// assignment) so script-initiated requests also route through the proxy.
// Compatibility glue only, not a security boundary: every wrapper swallows
// its own failures so the host page keeps running.
const shimTemplate = `<script>
(function(){
  var ENDPOINT = "@ENDPOINT@";
  function proxied(url) {
    try {
      if (!url) return url;
      url = String(url);
      if (url.indexOf(ENDPOINT + "?") !== -1) return url;
      if (/^(data|blob|javascript):/i.test(url)) return url;
      return ENDPOINT + "?url=" + encodeURIComponent(url);
    } catch (e) { return url; }
  }

  try {
    var origFetch = window.fetch;
    window.fetch = function(input, init) {
      try {
        if (typeof input === "string") input = proxied(input);
        else if (input && input.url) input = new Request(proxied(input.url), input);
      } catch (e) {}
      return origFetch.call(this, input, init);
    };
  } catch (e) {}

  try {
    var origOpen = XMLHttpRequest.prototype.open;
    XMLHttpRequest.prototype.open = function(method, url) {
      try { url = proxied(url); } catch (e) {}
      var rest = Array.prototype.slice.call(arguments, 2);
      return origOpen.apply(this, [method, url].concat(rest));
    };
  } catch (e) {}

  try {
    var OrigWS = window.WebSocket;
    var ProxyWS = function(url, protocols) {
      return protocols === undefined
        ? new OrigWS(proxied(url))
        : new OrigWS(proxied(url), protocols);
    };
    ProxyWS.prototype = OrigWS.prototype;
    window.WebSocket = ProxyWS;
  } catch (e) {}

  try {
    var loc = window.location;
    Object.defineProperty(window, "location", {
      set: function(val) { loc.href = proxied(val); },
      get: function() { return loc; }
    });
  } catch (e) {}
})();
</script>`

// shimScript returns the shim with the proxy endpoint baked in. The shim
// cannot encrypt, so script-initiated requests use the plain url parameter,
// which the proxy endpoint accepts alongside tokens.
func (r *Rewriter) shimScript() string {
	return strings.ReplaceAll(shimTemplate, "@ENDPOINT@", r.proxyPath)
}
