package v1

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"
)

type usage struct {
	Title   string
	Command string
}

func helps(base string) []usage {
	return []usage{
		{"Upload a file:", fmt.Sprintf("curl %s -F file=@**filename**", base)},
		{"Upload a file burned after its first download:", fmt.Sprintf("curl %s -F file=@**filename** -F burn=", base)},
		{"View all uploaded files:", fmt.Sprintf("curl %s/ls", base)},
		{"Get infos about one file:", fmt.Sprintf("curl %s/**file_id**/infos", base)},
		{"Get a file:", fmt.Sprintf("curl -JO %s/**file_id**", base)},
		{"Delete a file:", fmt.Sprintf("curl -XDELETE %s/**id**", base)},
		{"Create an alias for cli usage", fmt.Sprintf(`pastefile() { curl -F file=@"$1" %s; }`, base)},
	}
}

var helpPage = template.Must(template.New("help").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Pastefile</title>
    <style>
        form {
            margin: 20px;
        }
        .form-group {
            margin-bottom: 10px;
        }
        pre {
            background: #f4f4f4;
            padding: 6px;
        }
    </style>
</head>
<body>
    <form id="uploadForm" onsubmit="uploadFile(event)">
        <div class="form-group">
            <label for="fileInput">Select file:</label>
            <input type="file" id="fileInput" required>
        </div>
        <div class="form-group">
            <label for="burnInput">Burn after read</label>
            <input type="checkbox" id="burnInput">
        </div>
        <div class="form-group">
            <input type="submit" value="Upload File">
        </div>
    </form>
    <p id="result"></p>

    {{range .}}
    <h4>{{.Title}}</h4>
    <pre>{{.Command}}</pre>
    {{end}}

    <script>
    function uploadFile(event) {
        event.preventDefault();

        const file = document.getElementById('fileInput').files[0];
        if (!file) {
            alert('Please select a file first');
            return;
        }

        const body = new FormData();
        body.append('file', file);
        if (document.getElementById('burnInput').checked) {
            body.append('burn', 'true');
        }

        fetch('/', {
            method: 'POST',
            body: body,
        })
        .then(response => response.text())
        .then(text => {
            document.getElementById('result').textContent = text;
            document.getElementById('uploadForm').reset();
        })
        .catch(error => {
            console.error('Error:', error);
            alert('Upload failed');
        });
    }
    </script>
</body>
</html>`))

// Help describes how to use the service with curl. Command line clients get
// plain text, browsers an upload form.
func Help(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		usages := helps(baseURL(r))

		if strings.Contains(strings.ToLower(r.UserAgent()), "curl") {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(code)
			for _, u := range usages {
				fmt.Fprintf(w, "%s\n    %s\n\n", u.Title, u.Command)
			}
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(code)
		helpPage.Execute(w, usages)
	}
}
