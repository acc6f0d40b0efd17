package webmonitor

const indexHTML = `
<!DOCTYPE html>
<html lang="pt-BR">
<head>
    <meta charset="utf-8">
    <title>BestStop - Vagas</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { font-family: system-ui, sans-serif; background: #111; color: #eee; margin: 0; }
        .app { max-width: 960px; margin: 0 auto; padding: 24px; }
        .header { display: flex; justify-content: space-between; align-items: center; }
        .title { font-size: 1.6rem; font-weight: 600; }
        .badge { padding: 4px 10px; border-radius: 12px; background: #333; font-size: 0.85rem; }
        .badge.ok { background: #1b5e20; }
        .badge.err { background: #b71c1c; }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(200px, 1fr)); gap: 16px; margin-top: 24px; }
        .panel { background: #1e1e1e; border-radius: 8px; padding: 16px; }
        .panel h2 { margin: 0 0 8px; font-size: 0.9rem; color: #aaa; font-weight: 500; }
        .value { font-size: 2.2rem; font-weight: 700; }
        .free { color: #4caf50; }
        .occupied { color: #ef5350; }
        .bar { height: 14px; background: #ef5350; border-radius: 7px; overflow: hidden; margin-top: 24px; }
        .bar > div { height: 100%; background: #4caf50; width: 0; transition: width .4s; }
        table { width: 100%; border-collapse: collapse; margin-top: 24px; font-size: 0.9rem; }
        th, td { text-align: left; padding: 6px 8px; border-bottom: 1px solid #333; }
        .footer-note { color: #777; font-size: 0.8rem; margin-top: 16px; }
    </style>
</head>
<body>
    <div class="app">
        <div class="header">
            <div class="title">BestStop - Estacionamento</div>
            <span class="badge" id="status-badge">Aguardando dados...</span>
        </div>

        <div class="grid">
            <div class="panel"><h2>Vagas livres</h2><div class="value free" id="livres">0</div></div>
            <div class="panel"><h2>Vagas ocupadas</h2><div class="value occupied" id="ocupadas">0</div></div>
            <div class="panel"><h2>Total</h2><div class="value" id="total">0</div></div>
            <div class="panel"><h2>% livres</h2><div class="value free" id="perc">0.00%</div></div>
        </div>
        <div class="bar"><div id="bar-free"></div></div>

        <table>
            <thead><tr><th>Horário</th><th>Imagem</th><th>Livres</th><th>Ocupadas</th><th>% livres</th></tr></thead>
            <tbody id="history"></tbody>
        </table>
        <p class="footer-note" id="footer">Imagem: -</p>
    </div>

    <script>
        const $ = (id) => document.getElementById(id);
        const history = [];

        function fmtTime(ts) {
            if (!ts) return '-';
            return new Date(ts).toLocaleTimeString('pt-BR');
        }

        function render(d) {
            $('livres').textContent = d.vagas_livres;
            $('ocupadas').textContent = d.vagas_ocupadas;
            $('total').textContent = d.total_vagas;
            $('perc').textContent = d.perc_livres.toFixed(2) + '%';
            $('bar-free').style.width = (d.total_vagas > 0 ? d.perc_livres : 0) + '%';
            $('footer').textContent = 'Imagem: ' + (d.imagem || '-') + '  |  Atualizado: ' + fmtTime(d.atualizado_em);

            const badge = $('status-badge');
            if (d.erro) {
                badge.textContent = 'Erro: ' + d.erro;
                badge.className = 'badge err';
            } else {
                badge.textContent = 'Atualizado ' + fmtTime(d.atualizado_em);
                badge.className = 'badge ok';
            }

            if (d.atualizado_em) {
                history.unshift(d);
                history.splice(10);
                $('history').innerHTML = history.map((h) =>
                    '<tr><td>' + fmtTime(h.atualizado_em) + '</td><td>' + (h.imagem || '-') +
                    '</td><td>' + h.vagas_livres + '</td><td>' + h.vagas_ocupadas +
                    '</td><td>' + h.perc_livres.toFixed(2) + '%</td></tr>').join('');
            }
        }

        function poll() {
            fetch('/dados').then((r) => r.json()).then(render).catch(() => {});
        }

        if (window.EventSource) {
            const es = new EventSource('/api/dados/stream');
            es.onmessage = (ev) => render(JSON.parse(ev.data));
            es.onerror = () => { $('status-badge').textContent = 'Reconectando...'; };
        } else {
            poll();
            setInterval(poll, 5000);
        }
    </script>
</body>
</html>
`
