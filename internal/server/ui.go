package server

const indexHTML = `<!doctype html>
<html lang="en">
<meta charset="utf-8"/>
<meta name="viewport" content="width=device-width, initial-scale=1"/>
<title>Dataverse Agent</title>

<style>
  body {
    font-family: system-ui, sans-serif;
    margin: 2rem;
    max-width: 900px;
  }
  .card {
    border: 1px solid #ddd;
    border-radius: 12px;
    padding: 1rem;
    margin-top: 1rem;
  }
  .error {
    border-color: #c33;
  }
  textarea {
    width: 100%;
    height: 120px;
    padding: .6rem;
    border-radius: 8px;
    border: 1px solid #bbb;
  }
  button {
    padding: .6rem 1.4rem;
    border-radius: 8px;
    border: none;
    background: #111;
    color: #fff;
    cursor: pointer;
  }
  button:disabled {
    background: #777;
  }
  pre {
    white-space: pre-wrap;
  }
</style>

<h1>Dataverse Agent</h1>
<p>Ask a question; the agent plans an OData query, runs it against Dataverse and answers from the records.</p>

<div class="card">
  <label for="q"><b>Question:</b></label><br/>
  <textarea id="q" placeholder="e.g. Which tickets belong to ACME Corporation?"></textarea><br/><br/>
  <button id="send" onclick="ask()">Send</button>
</div>

<div id="out"></div>

<script>
function card(title, text, cls) {
  const div = document.createElement('div');
  div.className = 'card' + (cls ? ' ' + cls : '');
  const h = document.createElement('h3');
  h.textContent = title;
  const pre = document.createElement('pre');
  pre.textContent = text;
  div.appendChild(h);
  div.appendChild(pre);
  return div;
}

async function ask() {
  const q = document.getElementById('q').value.trim();
  if (!q) return;

  const send = document.getElementById('send');
  const out = document.getElementById('out');
  send.disabled = true;
  out.innerHTML = '';

  try {
    const res = await fetch('/ask', {
      method: 'POST',
      headers: {'Content-Type': 'application/json'},
      body: JSON.stringify({question: q})
    });
    const data = await res.json();

    if (!res.ok) {
      out.appendChild(card('Error (' + data.error.code + ')', data.error.message, 'error'));
      return;
    }

    out.appendChild(card('Answer', data.answer));
    out.appendChild(card('Generated plan', JSON.stringify(data.plan, null, 2)));
    out.appendChild(card('OData query', data.odata));
    out.appendChild(card('Dataverse result', JSON.stringify(data.raw_result, null, 2)));
  } catch (e) {
    out.appendChild(card('Error', String(e), 'error'));
  } finally {
    send.disabled = false;
  }
}
</script>

</html>
`
