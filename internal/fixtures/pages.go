package fixtures

// Page is a static document served by the fixture server.
type Page struct {
	Path        string
	Description string
	ContentType string
	Body        string
}

const (
	CustomGetPath     = "/html_custom-get-page.html"
	SendBeaconPath    = "/html_send-beacon.html"
	HTTPSRedirectPath = "/sjs_https-redirect-test-server.sjs"
	SimplePath        = "/sjs_simple-test-server.sjs"
	BeaconPath        = "/beacon_request"
)

// GetAllPages returns the fixture documents.
func GetAllPages() []Page {
	return []Page{
		customGetPage(),
		sendBeaconPage(),
	}
}

func customGetPage() Page {
	return Page{
		Path:        CustomGetPath,
		Description: "Issues XHR GETs to a caller-supplied URL",
		ContentType: "text/html; charset=utf-8",
		Body: `<!doctype html>
<html>
  <head>
    <meta charset="utf-8">
    <title>Network Monitor test page</title>
  </head>
  <body>
    <p>Request test</p>
    <script type="text/javascript">
      function get(address, callback) {
        var xhr = new XMLHttpRequest();
        xhr.open("GET", address, true);
        xhr.onreadystatechange = function () {
          if (this.readyState == this.DONE) {
            callback();
          }
        };
        xhr.send(null);
      }

      function performRequests(count, url) {
        if (!count) {
          return;
        }
        get(url, function () {
          setTimeout(function () { performRequests(count - 1, url); }, 0);
        });
      }
    </script>
  </body>
</html>
`,
	}
}

func sendBeaconPage() Page {
	return Page{
		Path:        SendBeaconPath,
		Description: "Sends a beacon to beacon_request",
		ContentType: "text/html; charset=utf-8",
		Body: `<!doctype html>
<html>
  <head>
    <meta charset="utf-8">
    <title>Network Monitor test page</title>
  </head>
  <body>
    <p>Send beacon test</p>
    <script type="text/javascript">
      function performRequest() {
        navigator.sendBeacon("beacon_request");
      }
    </script>
  </body>
</html>
`,
	}
}

const indexHTML = `<!doctype html>
<html>
<head><meta charset="utf-8"><title>netmon fixtures</title></head>
<body>
  <h1>netmon fixtures</h1>
  <ul>
  {{range .}}<li><a href="{{.Path}}">{{.Path}}</a> - {{.Description}}</li>
  {{end}}</ul>
</body>
</html>
`
