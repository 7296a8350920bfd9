package transport

const consoleHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Notification Dispatcher</title>
    <style>
        body { font-family: sans-serif; margin: 2rem; background: #f5f6f8; }
        .container { max-width: 960px; margin: 0 auto; display: grid; grid-template-columns: 1fr 1fr; gap: 1.5rem; }
        .panel { background: #fff; border-radius: 6px; padding: 1rem 1.5rem; box-shadow: 0 1px 3px rgba(0,0,0,.1); }
        .form-group { margin-bottom: .75rem; }
        label { display: block; font-weight: bold; margin-bottom: .25rem; }
        input, select, textarea { width: 100%; padding: .4rem; box-sizing: border-box; }
        .item { border-left: 4px solid #888; padding: .4rem .6rem; margin: .4rem 0; background: #fafafa; }
        .CRITICAL { border-color: #c0392b; } .WARNING { border-color: #e67e22; }
        .NORMAL { border-color: #2980b9; } .INFO { border-color: #7f8c8d; }
        .meta { font-size: .8rem; color: #666; }
    </style>
</head>
<body>
    <h1>Notification Dispatcher</h1>
    <div class="container">
        <div class="panel">
            <h2>Send notification</h2>
            <form id="sendForm">
                <div class="form-group">
                    <label for="message">Message:</label>
                    <textarea id="message" required></textarea>
                </div>
                <div class="form-group">
                    <label for="priority">Priority:</label>
                    <select id="priority">
                        <option>CRITICAL</option>
                        <option>WARNING</option>
                        <option selected>NORMAL</option>
                        <option>INFO</option>
                    </select>
                </div>
                <div class="form-group">
                    <label for="recipient">Recipient (empty for broadcast):</label>
                    <input type="text" id="recipient">
                </div>
                <button type="submit">Send</button>
            </form>
            <p id="sendResult" class="meta"></p>
            <p id="stats" class="meta"></p>
        </div>

        <div class="panel">
            <h2>Live feed</h2>
            <div class="form-group">
                <label for="username">Listen as:</label>
                <input type="text" id="username" placeholder="username (optional)">
                <button onclick="connectFeed()">Connect</button>
            </div>
            <p id="status" class="meta">Disconnected</p>
            <div id="feed"></div>
        </div>
    </div>

    <script>
        let socket;

        function escapeHtml(text) {
            const div = document.createElement('div');
            div.textContent = text == null ? '' : text;
            return div.innerHTML;
        }

        function render(n) {
            const who = n.recipient ? 'to ' + escapeHtml(n.recipient.username) : 'broadcast';
            const item = document.createElement('div');
            item.className = 'item ' + escapeHtml(n.priority);
            item.innerHTML = '<strong>' + escapeHtml(n.message) + '</strong>' +
                '<div class="meta">#' + n.id + ' ' + escapeHtml(n.priority) + ' ' + who + ' ' +
                escapeHtml(new Date(n.timestamp).toLocaleString()) + '</div>';
            const feed = document.getElementById('feed');
            feed.insertBefore(item, feed.firstChild);
        }

        function connectFeed() {
            if (socket) { socket.close(); }
            const username = document.getElementById('username').value.trim();
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            socket = new WebSocket(scheme + location.host + '/ws?username=' + encodeURIComponent(username));
            socket.onopen = () => { document.getElementById('status').textContent = 'Connected' + (username ? ' as ' + username : ''); };
            socket.onclose = () => { document.getElementById('status').textContent = 'Disconnected'; };
            socket.onmessage = (event) => render(JSON.parse(event.data));
        }

        async function loadStats() {
            const response = await fetch('/api/notifications/stats');
            if (response.ok) {
                const stats = await response.json();
                document.getElementById('stats').textContent =
                    'Users: ' + stats.total_users + ', notifications: ' + stats.total_notifications;
            }
        }

        document.getElementById('sendForm').addEventListener('submit', async (e) => {
            e.preventDefault();
            const body = {
                message: document.getElementById('message').value,
                priority: document.getElementById('priority').value,
                username: document.getElementById('recipient').value.trim()
            };
            const response = await fetch('/api/notifications/send', {
                method: 'POST',
                headers: { 'Content-Type': 'application/json' },
                body: JSON.stringify(body)
            });
            const data = await response.json();
            document.getElementById('sendResult').textContent = response.ok
                ? 'Queued #' + data.id + ' (' + data.status + ')'
                : 'Error: ' + data.error;
            loadStats();
        });

        document.addEventListener('DOMContentLoaded', () => { loadStats(); connectFeed(); });
    </script>
</body>
</html>
`
